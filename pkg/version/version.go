package version

import (
	"encoding/json"
	"log"
	"runtime/debug"
)

type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Time    string `json:"time"`
}

var Current = func() Info {
	v := Info{Version: "devel"}
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" {
			v.Version = info.Main.Version
		}
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				v.Commit = setting.Value
			}
			if setting.Key == "vcs.time" {
				v.Time = setting.Value
			}
		}
	}
	return v
}()

var Version = func() string {
	b, err := json.Marshal(&Current)
	if err != nil {
		log.Fatal(err)
	}
	return string(b)
}()

// Short is used as firmware revision.
func Short() string {
	if len(Current.Commit) >= 7 {
		return Current.Commit[:7]
	}
	return Current.Version
}
