package initial

import (
	"EchoDesk/internal/config"
	kbFile "EchoDesk/internal/modules/knowledge/domain/file"
	kbEntity "EchoDesk/internal/modules/knowledge/domain/kb"
	userEntity "EchoDesk/internal/modules/user/domain/entity"

	"EchoDesk/pkg/zlog"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var GormDB *gorm.DB

func init() {
	conf := config.GetConfig()
	user := conf.MysqlConfig.User
	password := conf.MysqlConfig.Password
	host := conf.MysqlConfig.Host
	port := conf.MysqlConfig.Port
	dbName := conf.MysqlConfig.DatabaseName
	if dbName == "" {
		dbName = conf.AppName
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local", user, password, host, port, dbName)
	var err error
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	GormDB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		zlog.Fatal(err.Error())
	}
	err = GormDB.AutoMigrate(
		&userEntity.Account{},

		&kbEntity.KnowledgeBase{},
		&kbEntity.Chatbot{},
		&kbEntity.Conversation{},

		&kbFile.IngestTask{},
		&kbFile.BlobObject{},
		&kbFile.FileTombstone{},
		&kbFile.Notification{},
		&kbFile.UsageRecord{},
	)
	// 自动迁移，如果没有建表，会自动创建对应的表
	if err != nil {
		zlog.Fatal(err.Error())
	}
}
