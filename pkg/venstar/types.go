package venstar

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// InfoResponse is the subset of GET /query/info the bridge uses.
type InfoResponse struct {
	Name      string  `json:"name,omitempty"`
	Mode      int     `json:"mode"`
	State     int     `json:"state"`
	Fan       int     `json:"fan"`
	FanState  int     `json:"fanstate"`
	TempUnits int     `json:"tempunits"` // 0 == F, 1 == C
	SpaceTemp float64 `json:"spacetemp"`
	HeatTemp  float64 `json:"heattemp"`
	CoolTemp  float64 `json:"cooltemp"`
}

// UsesFahrenheit inverts the device flag into a plain bool.
func (i InfoResponse) UsesFahrenheit() bool {
	return i.TempUnits == 0
}

// ControlRequest is sent as query parameters to POST /control. Temperatures are device native.
type ControlRequest struct {
	Mode     int
	Fan      int
	HeatTemp float64
	CoolTemp float64
}

func (c ControlRequest) Query() string {
	var b bytes.Buffer
	b.WriteString("mode=")
	b.WriteString(strconv.Itoa(c.Mode))
	b.WriteString("&fan=")
	b.WriteString(strconv.Itoa(c.Fan))
	b.WriteString("&heattemp=")
	b.WriteString(formatTemp(c.HeatTemp))
	b.WriteString("&cooltemp=")
	b.WriteString(formatTemp(c.CoolTemp))
	return b.String()
}

type ControlResponse struct {
	Success bool   `json:"success"`
	Error   Truthy `json:"error"`
	Reason  string `json:"reason,omitempty"`
}

// Truthy decodes any JSON value and records whether it would count as set:
// true, a non zero number or a non empty string.
type Truthy bool

func (t *Truthy) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case bool:
		*t = Truthy(val)
	case float64:
		*t = Truthy(val != 0)
	case string:
		*t = Truthy(val != "")
	case nil:
		*t = false
	default:
		*t = true
	}
	return nil
}

func formatTemp(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
