package middleware_test

import (
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/oarmstrong95/slack-bot/internal/http/middleware"
	"github.com/oarmstrong95/slack-bot/internal/metrics"
)

var _ = Describe("middleware", func() {
	var router *gin.Engine

	BeforeEach(func() {
		router = gin.New()
		router.Use(middleware.Recovery(), middleware.Logger("/health"), middleware.Metrics())
		router.GET("/panic", func(*gin.Context) { panic("boom") })
		router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	})

	serve := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	It("turns a panic into a 500", func() {
		w := serve("/panic")
		Expect(w.Code).To(Equal(http.StatusInternalServerError))
		Expect(w.Body.String()).To(ContainSubstring("internal server error"))
	})

	It("counts requests by route template", func() {
		before := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/health", "200"))
		serve("/health")
		Expect(testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/health", "200"))).To(Equal(before + 1))
	})

	It("labels unknown paths as unmatched", func() {
		before := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404"))
		serve("/nope")
		Expect(testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404"))).To(Equal(before + 1))
	})
})
