package microblog

// searchResponse mirrors the microblog recent-search API payload.
type searchResponse struct {
	Data     []post   `json:"data"`
	Includes includes `json:"includes"`
}

type post struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	AuthorID  string  `json:"author_id"`
	CreatedAt string  `json:"created_at"`
	Metrics   metrics `json:"public_metrics"`
}

type metrics struct {
	LikeCount   int `json:"like_count"`
	RepostCount int `json:"retweet_count"`
	ReplyCount  int `json:"reply_count"`
	QuoteCount  int `json:"quote_count"`
}

type includes struct {
	Users []user `json:"users"`
}

type user struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}
