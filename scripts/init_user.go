package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/lensfolio/internal/config"
	"github.com/lensfolio/internal/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("读取配置失败:", err)
	}

	var dbPath, username, password string
	flag.StringVar(&dbPath, "db", cfg.DatabasePath, "sqlite db path")
	flag.StringVar(&username, "username", cfg.SuperRootUserName, "admin username")
	flag.StringVar(&password, "password", cfg.SuperRootPassword, "admin password")
	flag.Parse()

	if username == "" || password == "" {
		log.Fatal("请通过 -username/-password 或 SUPER_ROOT_USER_NAME/SUPER_ROOT_PASSWORD 提供管理员账号")
	}

	// 初始化数据库
	if err := db.Init(dbPath); err != nil {
		log.Fatal("数据库初始化失败:", err)
	}

	if err := db.EnsureUser(username, password); err != nil {
		log.Fatal("创建用户失败:", err)
	}
	fmt.Printf("管理员 %s 已就绪\n", username)
}
