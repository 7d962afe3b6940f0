// templateseed 从 YAML 文件导入检查表模板
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"auditflow/internal/config"
	"auditflow/internal/infra"
	"auditflow/internal/template"

	gormLogger "gorm.io/gorm/logger"
)

func main() {
	env := flag.String("env", "dev", "配置环境 dev/prod/test")
	file := flag.String("file", "config/seed/templates.yaml", "模板种子文件")
	publish := flag.Bool("publish", true, "导入后立即发布")
	newVersion := flag.Bool("new-version", false, "同 code 已存在时仍创建新版本")
	createdBy := flag.String("created-by", "seed", "记录的创建人")
	flag.Parse()

	cfg, err := config.Load(*env, "")
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	db, err := infra.OpenDatabase(&cfg.Database, gormLogger.Warn)
	if err != nil {
		log.Fatalf("初始化数据库失败: %v", err)
	}
	defer infra.CloseDatabase(db)

	if err := infra.AutoMigrate(db, template.Models()...); err != nil {
		log.Fatalf("迁移模板表失败: %v", err)
	}

	fh, err := os.Open(*file)
	if err != nil {
		log.Fatalf("打开种子文件失败: %v", err)
	}
	defer fh.Close()

	seed, err := template.ParseSeed(fh)
	if err != nil {
		log.Fatalf("%v", err)
	}

	// 模板缓存在服务端首次读取时写入，这里不连接 Redis
	catalog := template.NewCatalog(db, nil)
	results, err := catalog.Seed(context.Background(), seed, template.SeedOptions{
		CreatedBy:  *createdBy,
		Publish:    *publish,
		NewVersion: *newVersion,
	})
	for _, r := range results {
		if r.Skipped {
			fmt.Printf("跳过 %s（已存在）\n", r.Code)
			continue
		}
		fmt.Printf("已导入 %s v%d (id=%s, published=%t)\n", r.Code, r.Template.Version, r.Template.ID, r.Template.Published)
	}
	if err != nil {
		log.Fatalf("导入失败: %v", err)
	}
}
