package webserver

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nergy-se/venstar-bridge/pkg/alarm"
	"github.com/nergy-se/venstar-bridge/pkg/api/v1/types"
	"github.com/nergy-se/venstar-bridge/pkg/controller"
	"github.com/nergy-se/venstar-bridge/pkg/convert"
	"github.com/nergy-se/venstar-bridge/pkg/state"
	"github.com/nergy-se/venstar-bridge/pkg/venstar"
	"github.com/nergy-se/venstar-bridge/pkg/version"
	"github.com/sirupsen/logrus"
)

var errNoSnapshot = errors.New("no snapshot fetched yet")

type Webserver struct {
	ctrl   controller.Controller
	cache  *state.Cache
	alarms *alarm.ActiveAlarms
}

func New(ctrl controller.Controller, cache *state.Cache, alarms *alarm.ActiveAlarms) *Webserver {
	return &Webserver{
		ctrl:   ctrl,
		cache:  cache,
		alarms: alarms,
	}
}

func handleErrors(c *gin.Context) {
	c.Next()

	if len(c.Errors) > 0 {
		c.JSON(-1, c.Errors) // -1 == not override the current error code
	}
}

// statusFor maps controller errors to http status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidMode),
		errors.Is(err, types.ErrInvalidFan),
		errors.Is(err, controller.ErrInvalidTemperature),
		errors.Is(err, controller.ErrReadOnly):
		return http.StatusBadRequest
	case errors.Is(err, controller.ErrUnknownCharacteristic), errors.Is(err, errNoSnapshot):
		return http.StatusNotFound
	case errors.Is(err, venstar.ErrDeviceRejected):
		return http.StatusConflict
	case errors.Is(err, venstar.ErrTransport), errors.Is(err, convert.ErrUnsupportedMode):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func abort(c *gin.Context, err error) {
	c.Status(statusFor(err))
	_ = c.Error(err)
}

func (ws *Webserver) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(handleErrors)

	api := r.Group("/api")

	api.GET("/thermostat", func(c *gin.Context) {
		s, err := ws.ctrl.Fetch(c.Request.Context(), nil)
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, s.Map())
	})

	api.GET("/thermostat/cached", func(c *gin.Context) {
		s := ws.cache.Get()
		if s == nil {
			abort(c, errNoSnapshot)
			return
		}
		c.JSON(http.StatusOK, s.Map())
	})

	api.PUT("/thermostat", func(c *gin.Context) {
		change := controller.ChangeRequest{}
		err := c.ShouldBindJSON(&change)
		if err != nil {
			c.Status(http.StatusBadRequest)
			_ = c.Error(err)
			return
		}
		err = ws.ctrl.Apply(c.Request.Context(), change)
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "applied"})
	})

	api.GET("/characteristic/:name", func(c *gin.Context) {
		ch, err := controller.ParseCharacteristic(c.Param("name"))
		if err != nil {
			abort(c, err)
			return
		}
		v, err := ws.ctrl.Get(c.Request.Context(), ch)
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"name": ch, "value": v})
	})

	api.PUT("/characteristic/:name", func(c *gin.Context) {
		ch, err := controller.ParseCharacteristic(c.Param("name"))
		if err != nil {
			abort(c, err)
			return
		}
		body := struct {
			Value *float64 `json:"value" binding:"required"`
		}{}
		err = c.ShouldBindJSON(&body)
		if err != nil {
			c.Status(http.StatusBadRequest)
			_ = c.Error(err)
			return
		}
		err = ws.ctrl.Set(c.Request.Context(), ch, *body.Value)
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "applied"})
	})

	api.GET("/alarms", func(c *gin.Context) {
		c.JSON(http.StatusOK, ws.alarms.List())
	})

	api.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, version.Current)
	})

	return r
}

// Start serves the api on listen until ctx is cancelled.
func (ws *Webserver) Start(ctx context.Context, wg *sync.WaitGroup, listen string) {
	srv := &http.Server{
		Addr:              listen,
		Handler:           ws.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		logrus.Infof("webserver: listening on %s", listen)
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("webserver: %s", err)
		}
	}()
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if err != nil {
			logrus.Errorf("webserver: error shutting down: %s", err)
		}
	}()
}
