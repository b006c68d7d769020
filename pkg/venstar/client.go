package venstar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultTimeout = 10 * time.Second

// Client talks to the local API of a Venstar ColorTouch thermostat.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient accepts host[:port] or a full http(s) base URL.
func NewClient(address string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL(address),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func baseURL(address string) string {
	address = strings.TrimRight(address, "/")
	if strings.HasPrefix(address, "http://") || strings.HasPrefix(address, "https://") {
		return address
	}
	return "http://" + address
}

func (c *Client) Address() string {
	return c.baseURL
}

// Info reads GET /query/info.
func (c *Client) Info(ctx context.Context) (*InfoResponse, error) {
	u := c.baseURL + "/query/info"
	response := &InfoResponse{}
	err := c.do(ctx, http.MethodGet, u, response)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"mode":      response.Mode,
		"tempunits": response.TempUnits,
		"spacetemp": response.SpaceTemp,
		"heattemp":  response.HeatTemp,
		"cooltemp":  response.CoolTemp,
		"fan":       response.Fan,
		"fanstate":  response.FanState,
	}).Trace("venstar: info")
	return response, nil
}

// Control writes mode, fan and both setpoints in one POST /control.
func (c *Client) Control(ctx context.Context, cr ControlRequest) (*ControlResponse, error) {
	u := c.baseURL + "/control?" + cr.Query()
	response := &ControlResponse{}
	err := c.do(ctx, http.MethodPost, u, response)
	if err != nil {
		return nil, err
	}
	if response.Error {
		return response, &DeviceRejectedError{Reason: response.Reason}
	}
	return response, nil
}

func (c *Client) do(ctx context.Context, method, u string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return &TransportError{Op: method, URL: u, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: method, URL: u, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{Op: method, URL: u, Err: fmt.Errorf("unexpected StatusCode: %d", resp.StatusCode)}
	}

	err = json.NewDecoder(resp.Body).Decode(dst)
	if err != nil {
		return &TransportError{Op: method, URL: u, Err: fmt.Errorf("error decoding response: %w", err)}
	}
	return nil
}
