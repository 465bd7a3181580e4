package model

type Stats struct {
	UserID        string `gorm:"primaryKey" json:"-"`
	MaxStorage    int64  `json:"maxStorage"`
	UsedStorage   int64  `json:"usedStorage"`
	UploadedFiles int    `json:"uploadedFiles"`
}

// Fits reports whether size more bytes still fit in the user's quota
func (s *Stats) Fits(size int64) bool {
	return s.UsedStorage+size <= s.MaxStorage
}
