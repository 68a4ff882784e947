package transport

import (
	"github.com/wb-go/wbf/ginext"
)

type Handlers struct {
	Jobs      *JobHandler
	Watermark *WatermarkHandler
	Admin     *AdminHandler
}

type RouteOptions struct {
	RateLimitRPS   float64
	RateLimitBurst int
	MaxUploadBytes int64
	Verifier       PasswordVerifier
}

// Router - методы *ginext.Engine и *ginext.RouterGroup, которыми пользуется RegisterRoutes
type Router interface {
	GET(relativePath string, handlers ...ginext.HandlerFunc)
	POST(relativePath string, handlers ...ginext.HandlerFunc)
	PUT(relativePath string, handlers ...ginext.HandlerFunc)
	DELETE(relativePath string, handlers ...ginext.HandlerFunc)
}

// RegisterRoutes вешает все ручки сервиса; лимиты и авторизация навешиваются цепочкой на каждую ручку
func RegisterRoutes(r Router, h Handlers, opt RouteOptions) {
	limit := RateLimit(opt.RateLimitRPS, opt.RateLimitBurst)
	body := LimitBody(opt.MaxUploadBytes)
	admin := AdminAuth(opt.Verifier)

	r.GET("/ping", h.Jobs.SimplePinger)

	// синхронная обработка
	r.POST("/api/watermark", limit, body, h.Watermark.Process)
	r.POST("/api/watermark/custom", limit, body, h.Watermark.Custom)

	// задачи через кафку
	r.POST("/api/jobs", limit, body, h.Jobs.Create)
	r.GET("/api/jobs", h.Jobs.GetAllJobs)
	r.GET("/api/jobs/:id", h.Jobs.GetJob)
	r.GET("/api/jobs/:id/items/:n", h.Jobs.LoadItem)
	r.DELETE("/api/jobs/:id", h.Jobs.Delete)

	// админка
	r.POST("/api/admin/password", body, h.Admin.SetPassword)
	r.GET("/api/admin/watermarks", admin, h.Admin.WatermarkStatus)
	r.PUT("/api/admin/watermarks/:variant", admin, body, h.Admin.UploadWatermark)
	r.DELETE("/api/admin/watermarks/:variant", admin, h.Admin.DeleteWatermark)
	r.GET("/api/admin/settings", admin, h.Admin.GetSettings)
	r.PUT("/api/admin/settings", admin, body, h.Admin.SaveSettings)
	r.POST("/api/admin/kv/save", admin, body, h.Admin.SaveKV)
	r.GET("/api/admin/kv/load", admin, h.Admin.LoadKV)
	r.POST("/api/admin/kv/delete", admin, h.Admin.DeleteKV)
}
