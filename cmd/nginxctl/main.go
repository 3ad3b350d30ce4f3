package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"cryptomonitor/internal/config"
	"cryptomonitor/internal/logger"
	"cryptomonitor/internal/proxyctl"
)

const usage = `usage: nginxctl [flags] start|stop|restart|status|test

flags:
  -bin    path to the nginx binary
  -conf   path to the nginx config file
  -probe  URL probed by the status command
`

func main() {
	cfg := proxyctl.DefaultConfig()
	flag.StringVar(&cfg.BinaryPath, "bin", cfg.BinaryPath, "path to the nginx binary")
	flag.StringVar(&cfg.ConfigPath, "conf", cfg.ConfigPath, "path to the nginx config file")
	flag.StringVar(&cfg.ProbeURL, "probe", cfg.ProbeURL, "URL probed by the status command")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	log := logger.New(config.LogConfig{Level: "info"})
	ctl := proxyctl.New(cfg, log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch action := flag.Arg(0); action {
	case "start":
		err = ctl.Start(ctx)
	case "stop":
		err = ctl.Stop(ctx)
	case "restart":
		err = ctl.Restart(ctx)
	case "status":
		var st *proxyctl.Status
		st, err = ctl.Status(ctx)
		if err == nil {
			out, _ := json.MarshalIndent(st, "", "  ")
			fmt.Println(string(out))
		}
	case "test":
		err = ctl.Test(ctx)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		log.WithError(err).Error("command failed")
		os.Exit(1)
	}
}
