package database

import "vid2doc/app/model"

func AutoMigrate() error {
	// 自动迁移表结构
	return DB.AutoMigrate(
		&model.User{},
		&model.Video{},
		&model.Slide{},
		&model.TextExtract{},
		&model.AudioFailure{},
	)
}
