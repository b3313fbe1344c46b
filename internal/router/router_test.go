package router

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lensfolio/internal/db"
	"github.com/lensfolio/internal/handler"
	"github.com/lensfolio/internal/service"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestAPI(t *testing.T) *handler.API {
	t.Helper()
	dsn := fmt.Sprintf("file:router-%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	log := zaptest.NewLogger(t)
	taxonomy := service.NewTaxonomyService(gdb, log)
	autofill := service.NewAutofillEngine(nil, log)
	pictureSets := service.NewPictureSetService(gdb, taxonomy, service.NewLocationService(gdb, nil, log), autofill, nil, nil, log)
	return handler.NewAPI(handler.Options{
		DB:          gdb,
		PictureSets: pictureSets,
		Taxonomy:    taxonomy,
		Sections:    service.NewSectionService(gdb),
		System:      service.NewSystemSettingService(gdb),
		Logger:      log,
	})
}

func TestSetupRouterServesUploadsAlias(t *testing.T) {
	gin.SetMode(gin.TestMode)

	uploadDir := t.TempDir()
	fileName := "example.txt"
	fileContent := []byte("hello uploads")
	if err := os.WriteFile(filepath.Join(uploadDir, fileName), fileContent, 0o644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	r := SetupRouter(newTestAPI(t), Config{SessionSecret: "test-secret", UploadDir: uploadDir, UploadURLPath: "/static/uploads"})

	for _, path := range []string{"/uploads/" + fileName, "/static/uploads/" + fileName} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected status %d, got %d", path, http.StatusOK, rr.Code)
		}
		if rr.Body.String() != string(fileContent) {
			t.Fatalf("%s: unexpected body, got %q", path, rr.Body.String())
		}
	}
}

func TestSetupRouterProtectsAdminAPI(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := SetupRouter(newTestAPI(t), Config{SessionSecret: "test-secret"})

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{method: http.MethodGet, path: "/healthz", want: http.StatusOK},
		{method: http.MethodGet, path: "/api/picture-sets", want: http.StatusOK},
		{method: http.MethodGet, path: "/admin/api/picture-sets", want: http.StatusUnauthorized},
		{method: http.MethodPost, path: "/admin/api/uploads", want: http.StatusUnauthorized},
		{method: http.MethodGet, path: "/admin/api/settings", want: http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rr.Code)
			}
		})
	}
}
