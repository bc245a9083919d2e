// Package portgate 提供动态端口转发网关
//
// portgate 为 (远端主机, 协议) 对分配稳定的本地外部端口，
// 并在两端之间透明地中继字节。映射持久化在单个扁平 JSON 存储中，
// 进程重启后由启动恢复重建所有监听器。
//
// 快速开始:
//
//	ctx := context.Background()
//	gw, err := portgate.Start(ctx,
//	    portgate.WithStorePath("/var/lib/portgate/port_mappings.json"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer gw.Close()
//
//	port, err := gw.RequestForward(ctx, "db.internal", "ssh")
//	// ssh -p <port> 127.0.0.1 现在会被转发到 db.internal:22
//
// 支持的协议及其内部端口: ssh→22, telnet→23, http→80, https→443。
package portgate
