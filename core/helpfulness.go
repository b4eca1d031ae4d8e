package core

// Helpfulness is the running like/dislike aggregate across a user's reviews.
// It is maintained incrementally from vote and deletion deltas rather than
// rescanned from every review.
type Helpfulness struct {
	Likes    int64 `json:"likes"`
	Dislikes int64 `json:"dislikes"`
}

// Votes returns the total number of votes cast.
func (h Helpfulness) Votes() int64 { return h.Likes + h.Dislikes }

// Ratio returns likes / votes in [0,1], or 0 when nobody voted.
func (h Helpfulness) Ratio() float64 {
	votes := h.Votes()
	if votes <= 0 {
		return 0
	}
	return float64(h.Likes) / float64(votes)
}

// Apply adds the given deltas, flooring each side at zero.
func (h Helpfulness) Apply(likes, dislikes int64) Helpfulness {
	h.Likes += likes
	h.Dislikes += dislikes
	if h.Likes < 0 {
		h.Likes = 0
	}
	if h.Dislikes < 0 {
		h.Dislikes = 0
	}
	return h
}
