package entity

import "time"

// Account 座席账号，归属于一个组织（租户）
type Account struct {
	Id        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Uuid      string    `gorm:"column:uuid;type:varchar(64);uniqueIndex;not null"`
	Username  string    `gorm:"column:username;type:varchar(64);uniqueIndex;not null"`
	Password  string    `gorm:"column:password;type:varchar(128);not null"`
	Nickname  string    `gorm:"column:nickname;type:varchar(64)"`
	OrgID     string    `gorm:"column:org_id;type:varchar(64);index;not null"`
	OrgName   string    `gorm:"column:org_name;type:varchar(128)"`
	Status    int8      `gorm:"column:status;default:0"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (Account) TableName() string { return "kb_account" }
