package reader

// Wire types of the BrowseScript page methods. ASP.NET page methods wrap
// every result in a "d" envelope; pointer fields distinguish an absent
// field from an empty one.

type loadPageDataRequest struct {
	SessionVars    string `json:"sessionVars"`
	NumPagesToLoad int    `json:"numPagesToLoad"`
}

type loadSinglePageRequest struct {
	SessionVars string `json:"sessionVars"`
	PageNum     int    `json:"pageNum"`
}

type pageDataResponse struct {
	D *pageData `json:"d"`
}

type pageData struct {
	Pages   *[]page  `json:"Pages"`
	Scripts []script `json:"Scripts"`
}

type singlePageResponse struct {
	D *singlePage `json:"d"`
}

type singlePage struct {
	Pages *[]page `json:"Pages"`
}

type page struct {
	PageNum     int    `json:"PageNum"`
	EncodedFile string `json:"EncodedFile"`
}

type script struct {
	ID             int    `json:"Id"`
	PageCount      *int   `json:"PageCount"`
	Name           string `json:"Name"`
	ProductionName string `json:"ProductionName"`
}

func (s script) displayName() string {
	if s.ProductionName != "" {
		return s.ProductionName
	}
	return s.Name
}
