package models

// Room is a physical escape-game room teams get assigned to. The number is
// the primary key so assignments stay readable in exports ("Salle 2").
type Room struct {
	Number int    `gorm:"primaryKey;autoIncrement:false" json:"number"`
	Name   string `gorm:"not null" json:"name"`
}

func (Room) TableName() string {
	return "rooms"
}
