package forum

// listing mirrors the forum search API envelope.
type listing struct {
	Data struct {
		Children []struct {
			Data threadData `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type threadData struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	SelfText    string  `json:"selftext"`
	Author      string  `json:"author"`
	CreatedUTC  float64 `json:"created_utc"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	Permalink   string  `json:"permalink"`
}
