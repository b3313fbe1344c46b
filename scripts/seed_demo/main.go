package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/lensfolio/internal/config"
	"github.com/lensfolio/internal/db"
	"github.com/lensfolio/internal/service"
	"go.uber.org/zap"
)

// 演示数据生成器
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("读取配置失败:", err)
	}

	var dbPath string
	flag.StringVar(&dbPath, "db", cfg.DatabasePath, "sqlite db path")
	flag.Parse()

	// 初始化数据库
	if err := db.Init(dbPath); err != nil {
		log.Fatal("数据库初始化失败:", err)
	}

	fmt.Println("开始生成演示数据...")

	if err := db.EnsureUser("admin", "admin123"); err != nil {
		log.Fatal("创建用户失败:", err)
	}

	logger := zap.NewNop()
	taxonomy := service.NewTaxonomyService(db.DB, logger)
	sections := service.NewSectionService(db.DB)
	pictureSets := service.NewPictureSetService(db.DB, taxonomy, service.NewLocationService(db.DB, nil, logger),
		service.NewAutofillEngine(nil, logger), nil, nil, logger)
	pictureSets.SetUploadURLPath(cfg.UploadURLPath)

	ctx := context.Background()
	sectionID, err := ensureSection(ctx, sections, "Featured")
	if err != nil {
		log.Fatal("创建分区失败:", err)
	}

	for _, input := range demoPictureSets(sectionID) {
		detail, err := pictureSets.Save(ctx, 0, input)
		if err != nil {
			log.Fatalf("创建作品集 %q 失败: %v", input.Title, err)
		}
		fmt.Printf("作品集 #%d %s (%d 张图片)\n", detail.ID, detail.Title, len(detail.Pictures))
	}

	fmt.Println("演示数据生成完成！")
	fmt.Println("用户: admin (密码: admin123)")
}

func ensureSection(ctx context.Context, sections *service.SectionService, name string) (uint, error) {
	created, err := sections.Create(ctx, name, 0)
	if err == nil {
		return created.ID, nil
	}
	if !errors.Is(err, service.ErrSectionExists) {
		return 0, err
	}
	existing, err := sections.List(ctx)
	if err != nil {
		return 0, err
	}
	for _, section := range existing {
		if section.Name == name {
			return section.ID, nil
		}
	}
	return 0, service.ErrSectionExists
}

func demoPictureSets(sectionID uint) []service.PictureSetInput {
	lat, lng := 24.4798, 118.0894
	return []service.PictureSetInput{
		{
			Title:             "海边日落",
			Description:       "鼓浪屿西侧的**晚霞**。",
			IsPublished:       true,
			Tags:              []string{"海边", "日落"},
			Categories:        []string{"风光"},
			Season:            "夏",
			SectionIDs:        []uint{sectionID},
			Location:          &service.LocationInput{Name: "厦门", Latitude: &lat, Longitude: &lng},
			PropagateTaxonomy: true,
			Pictures: []service.PictureInput{
				{ImageURL: "demo/sunset-1.jpg", Title: "退潮", ImageWidth: 6000, ImageHeight: 4000, Style: "胶片"},
				{ImageURL: "demo/sunset-2.jpg", Title: "归航", ImageWidth: 4000, ImageHeight: 6000},
			},
		},
		{
			Title:       "Morning fog",
			Subtitle:    "Early walks in the hills",
			IsPublished: true,
			Tags:        []string{"fog", "hills"},
			Categories:  []string{"Landscape", "Travel"},
			Season:      "Autumn",
			Pictures: []service.PictureInput{
				{ImageURL: "demo/fog-1.jpg", Title: "Ridge line", ImageWidth: 5000, ImageHeight: 3333},
			},
		},
		{
			Title:    "草稿：城市夜景",
			Tags:     []string{"城市"},
			Pictures: []service.PictureInput{{ImageURL: "demo/night-1.jpg"}},
		},
	}
}
