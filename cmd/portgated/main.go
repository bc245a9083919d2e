// Package main 提供独立的 portgate 守护进程
//
// portgated 在启动时从映射存储恢复所有端口监听器，
// 并通过 HTTP 网关接受新的转发请求。
//
// 使用方法:
//
//	go run main.go -store ~/.portgate/port_mappings.json -gateway 127.0.0.1:8443
//
// 或使用配置文件:
//
//	go run main.go -config /etc/portgate/config.json
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	portgate "github.com/portgate/go-portgate"
	"github.com/portgate/go-portgate/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Printf("❌ 错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 解析命令行参数
	configPath := flag.String("config", "", "配置文件路径（JSON，可选）")
	storePath := flag.String("store", "", "映射存储文件路径")
	startPort := flag.Int("start-port", 0, "空集合时分配的起始外部端口")
	listenHost := flag.String("listen", "", "端口监听器绑定的本地地址")
	gatewayAddr := flag.String("gateway", "", "HTTP 网关监听地址")
	noGateway := flag.Bool("no-gateway", false, "禁用 HTTP 网关")
	statsEvery := flag.Duration("stats-interval", 30*time.Second, "统计报告间隔（0 禁用）")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	// 命令行参数覆盖配置文件
	opts := []portgate.Option{portgate.WithConfig(cfg)}
	if *storePath != "" {
		opts = append(opts, portgate.WithStorePath(*storePath))
	}
	if *startPort > 0 {
		opts = append(opts, portgate.WithStartPort(*startPort))
	}
	if *listenHost != "" {
		opts = append(opts, portgate.WithListenHost(*listenHost))
	}
	if *gatewayAddr != "" {
		opts = append(opts, portgate.WithGatewayAddr(*gatewayAddr))
	}
	if *noGateway {
		opts = append(opts, portgate.WithGatewayDisabled())
	}

	fmt.Println("╔══════════════════════════════════════════════════════╗")
	fmt.Println("║            PortGate 端口转发网关                      ║")
	fmt.Println("╚══════════════════════════════════════════════════════╝")
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 捕获中断信号
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signalCh
		fmt.Printf("\n收到信号 %v，正在关闭...\n", sig)
		cancel()
	}()

	// 创建并启动网关
	gw, err := portgate.Start(ctx, opts...)
	if err != nil {
		return fmt.Errorf("启动网关失败: %w", err)
	}
	defer func() { _ = gw.Close() }()

	printGatewayInfo(gw)

	// 启动统计报告
	if *statsEvery > 0 {
		go reportStats(ctx, gw, *statsEvery)
	}

	// 等待关闭
	<-ctx.Done()

	fmt.Println("\n正在关闭网关...")
	if err := gw.Close(); err != nil {
		return fmt.Errorf("关闭网关失败: %w", err)
	}
	fmt.Println("再见! 👋")
	return nil
}

// loadConfig 加载配置文件；未指定时使用默认配置
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.NewConfig(), nil
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	return cfg, nil
}

// printGatewayInfo 打印网关信息
func printGatewayInfo(gw *portgate.Gateway) {
	cfg := gw.Config()

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════╗")
	fmt.Println("║                    网关信息                           ║")
	fmt.Println("╠══════════════════════════════════════════════════════╣")
	fmt.Printf("║ 映射存储: %s\n", cfg.Store.Path)
	fmt.Printf("║ 起始端口: %d\n", cfg.Store.StartPort)
	fmt.Printf("║ 监听地址: %s\n", cfg.Proxy.ListenHost)
	if addr := gw.GatewayAddr(); addr != "" {
		fmt.Printf("║ HTTP 网关: http://%s\n", addr)
	} else {
		fmt.Println("║ HTTP 网关: 已禁用")
	}
	fmt.Println("║")
	fmt.Println("║ 已恢复的代理:")
	proxies := gw.Status()
	if len(proxies) == 0 {
		fmt.Println("║   （无）")
	}
	for _, p := range proxies {
		fmt.Printf("║   • :%d → %s:%d\n", p.ExternalPort, p.RemoteHost, p.RemotePort)
	}
	fmt.Println("╚══════════════════════════════════════════════════════╝")
	fmt.Println()

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("网关已启动，等待转发请求...")
	fmt.Println("按 Ctrl+C 停止")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

// reportStats 定期报告统计信息
func reportStats(ctx context.Context, gw *portgate.Gateway, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			proxies := gw.Status()
			active := 0
			for _, p := range proxies {
				active += p.ActiveConns
			}
			bw := gw.Bandwidth()
			fmt.Printf("[Stats] 代理数: %d, 活跃连接: %d, 累计字节: in=%d out=%d\n",
				len(proxies), active, bw.TotalIn, bw.TotalOut)
		}
	}
}
