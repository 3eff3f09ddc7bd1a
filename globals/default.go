package globals

import "github.com/hashicorp/go-hclog"

var AppLogger = hclog.New(&hclog.LoggerOptions{
	Name:  "lightspeed-tabletop",
	Level: hclog.LevelFromString("INFO"),
})
