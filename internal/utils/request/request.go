package request

import (
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultTimeout = 15 * time.Second

// Request is the shared provider client.
var Request = New(defaultTimeout)

// New builds a resty client that honours proxy env vars and retries transport errors.
func New(timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return resty.New().SetTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment, // 通用适配环境变量
	}).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(200 * time.Millisecond).
		SetHeader("Accept", "application/json")
}
