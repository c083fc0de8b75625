package models

// Setting is a durable key-value configuration pair. The giveaway round
// state lives here under the giveaway_* keys.
type Setting struct {
	Key   string `gorm:"primaryKey;size:64" json:"key"`
	Value string `gorm:"size:255;not null" json:"value"`
}

func (Setting) TableName() string {
	return "settings"
}
