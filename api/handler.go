package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

const contentTypeFirmware = "application/octet-stream"

// FirmwareHandler handles /firmware endpoint
func (svc *Service) FirmwareHandler(ginCtx *gin.Context) {
	fd, info, err := svc.firmware.Open()
	if err != nil {
		if errors.Cause(err) == ErrFirmwareNotFound {
			svc.stats.missed()
			glog.V(2).Infof("client %s asked for missing firmware: %v", ginCtx.ClientIP(), err)
			ginCtx.String(http.StatusNotFound, "%s not found", svc.firmware.Name())
			return
		}
		// the cause stays in the log, clients only learn that reading failed
		svc.stats.failed()
		glog.Errorf("Can not read firmware, caused by: %v", err)
		ginCtx.String(http.StatusInternalServerError, "%s could not be read", svc.firmware.Name())
		return
	}
	defer fd.Close()

	ginCtx.Header("Content-Type", contentTypeFirmware)
	ginCtx.Header("Content-Length", strconv.FormatInt(info.Size(), 10))
	ginCtx.Status(http.StatusOK)

	n, err := io.Copy(ginCtx.Writer, fd)
	if err != nil {
		svc.stats.failed()
		glog.Errorf("Could not copy %s to client %s after %d bytes, caused by: %v", svc.firmware.Name(), ginCtx.ClientIP(), n, err)
		ginCtx.Abort()
		return
	}
	svc.stats.served(n)
	glog.Infof("Copied %d bytes of %s to client %s", n, svc.firmware.Name(), ginCtx.ClientIP())
}

// HealthHandler handles /healthz endpoint
func (svc *Service) HealthHandler(ginCtx *gin.Context) {
	if svc.IsHealthy() {
		ginCtx.String(http.StatusOK, "%s", "OK")
	} else {
		ginCtx.String(http.StatusServiceUnavailable, "%s", "Unavailable")
	}
}

// IsHealthy returns the health status of the running service. The
// firmware directory is checked on every call.
func (svc *Service) IsHealthy() bool {
	return svc.healthy.Load() && svc.checkDependencies() == nil
}

// SetHealthy marks the service as up or down, see IsHealthy.
func (svc *Service) SetHealthy(healthy bool) {
	svc.healthy.Store(healthy)
}
