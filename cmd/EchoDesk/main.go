package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	https_server "EchoDesk/api/http"
	"EchoDesk/internal/config"
	"EchoDesk/pkg/zlog"
)

func main() {
	// 1. 加载配置
	conf := config.GetConfig()
	host := conf.MainConfig.Host
	port := conf.MainConfig.Port

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. 启动 HTTP 服务
	go func() {
		addr := fmt.Sprintf("%s:%d", host, port)
		zlog.Info(fmt.Sprintf("服务器正在启动，监听地址: %s", addr))
		// 目前使用 HTTP 启动。如果需要 HTTPS，请配置证书并使用 GE.RunTLS
		if err := https_server.GE.Run(addr); err != nil {
			zlog.Fatal("服务器启动失败: " + err.Error())
			return
		}
	}()

	// 3. 启动后台运行件：出箱中继、任务消费者、墓碑清扫、通知看门狗
	if https_server.Relay != nil {
		go func() {
			if err := https_server.Relay.Run(ctx); err != nil && ctx.Err() == nil {
				zlog.Error("outbox relay stopped: " + err.Error())
			}
		}()
	}
	if https_server.Worker != nil {
		go func() {
			if err := https_server.Worker.Run(ctx); err != nil && ctx.Err() == nil {
				zlog.Error("task worker stopped: " + err.Error())
			}
		}()
	}
	go func() {
		if err := https_server.Sweeper.RunSweeper(ctx, 0); err != nil && ctx.Err() == nil {
			zlog.Error("tombstone sweeper stopped: " + err.Error())
		}
	}()
	go func() {
		if err := https_server.Notifier.RunWatchdog(ctx, 0); err != nil && ctx.Err() == nil {
			zlog.Error("notification watchdog stopped: " + err.Error())
		}
	}()

	// 4. 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit

	zlog.Info("正在关闭服务器...")
	cancel()

	zlog.Info("服务器已关闭")
}
