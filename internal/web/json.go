package web

import (
	"encoding/json"

	"github.com/sweeney/raspitherm/internal/heating"
)

// ChannelJSON is the answer to a ch, hw or status query.
// The _js fields are 0/1 for scripts; the others are "on"/"off".
type ChannelJSON struct {
	HWStatusJS int    `json:"hw_status_js"`
	CHStatusJS int    `json:"ch_status_js"`
	HWStatus   string `json:"hw_status"`
	CHStatus   string `json:"ch_status"`
	HW         string `json:"hw"`
	CH         string `json:"ch"`
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func flag(v bool) int {
	if v {
		return 1
	}
	return 0
}

func buildChannelJSON(st heating.Status) ChannelJSON {
	return ChannelJSON{
		HWStatusJS: flag(st.HW),
		CHStatusJS: flag(st.CH),
		HWStatus:   onOff(st.HW),
		CHStatus:   onOff(st.CH),
		HW:         onOff(st.HW),
		CH:         onOff(st.CH),
	}
}

func formatChannelJSON(st heating.Status) []byte {
	data, _ := json.Marshal(buildChannelJSON(st))
	return data
}
