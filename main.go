/*
 * Copyright 2024 the apnsgate authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// Command apnsgate runs a long-lived client to the old APNS binary gateway:
// it keeps a connection open, periodically drains the feedback service, and
// logs everything the gateway pushes back.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pushgate/apnsgate/db"
	"github.com/pushgate/apnsgate/push"
	apns "github.com/pushgate/apnsgate/srv/apns"
	"github.com/pushgate/apnsgate/srv/apns/binary"
)

var apnsgateConfFlag = flag.String("config", "/etc/apnsgate/apnsgate.conf", "Config file path")
var apnsgateShowVersionFlag = flag.Bool("version", false, "Version info")

var apnsgateVersion = "apnsgate 1.0.2"

func main() {
	flag.Parse()
	if *apnsgateShowVersionFlag {
		fmt.Printf("%v\n", apnsgateVersion)
		return
	}

	if err := run(*apnsgateConfFlag); err != nil {
		fmt.Fprintf(os.Stderr, "Cannot start: %v\n", err)
		os.Exit(1)
	}
}

func run(confPath string) error {
	c, err := OpenConfig(confPath)
	if err != nil {
		return err
	}
	logger, err := loadLogger(os.Stderr, c, "[apnsgate]")
	if err != nil {
		return err
	}
	gatewayConf, err := LoadGatewayConfig(c)
	if err != nil {
		return err
	}
	dbConf, err := LoadDatabaseConfig(c)
	if err != nil {
		return err
	}
	store, err := db.NewTokenStore(dbConf)
	if err != nil {
		return err
	}
	if known, terr := store.InvalidTokens(); terr != nil {
		logger.Warnf("Cannot list known invalid tokens: %v", terr)
	} else if len(known) > 0 {
		logger.Infof("%d device tokens already marked invalid", len(known))
	}

	service := apns.NewService(gatewayConf, store, logger)
	service.OnError(func(frame *binary.ErrorFrame) {
		logger.Errorf("Gateway error response: %v", frame)
	})
	service.OnReport(func(perr push.Error) {
		switch report := perr.(type) {
		case *push.InfoReport:
		case *push.UnsubscribeUpdate:
			logger.Infof("Device token %s unsubscribed at %v", report.Token, report.Timestamp)
		case *push.RetryError:
			logger.Errorf("Gateway connection lost, worth retrying in %v: %v", report.After, report.Reason)
		default:
			logger.Errorf("Gateway report: %v", perr)
		}
	})
	if cerr := service.Connect(); cerr != nil {
		return cerr
	}
	logger.Infof("%v started", apnsgateVersion)

	feedbackTicker := time.NewTicker(LoadFeedbackInterval(c))
	defer feedbackTicker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-feedbackTicker.C:
			records, ferr := service.Feedback()
			if ferr != nil {
				logger.Errorf("Feedback poll failed: %v", ferr)
				continue
			}
			logger.Infof("Feedback poll: %d invalid tokens", len(records))
		case sig := <-sigChan:
			logger.Infof("Received %v, shutting down", sig)
			return service.Close()
		}
	}
}
