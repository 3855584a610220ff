package mtl

import (
	"fmt"
	"net"
	"strings"

	"github.com/cloudwego/kitex/pkg/klog"
	"github.com/cloudwego/kitex/pkg/registry"
	consul "github.com/kitex-contrib/registry-consul"
)

// Register announces the HTTP service and, when metricsAddr is set, a "prometheus" pseudo
// service tagged with the real service name, so scrapers find it through consul. The returned
// func deregisters both.
func Register(serviceName, httpAddr, metricsAddr, registryAddr string) (func(), error) {
	if registryAddr == "" {
		return func() {}, nil
	}
	reg, err := consul.NewConsulRegister(registryAddr)
	if err != nil {
		return nil, fmt.Errorf("consul register init: %w", err)
	}
	var infos []*registry.Info
	add := func(name, addr string, tags map[string]string) error {
		tcpAddr, err := net.ResolveTCPAddr("tcp", normalizeAddr(addr))
		if err != nil {
			return fmt.Errorf("resolve %s addr %q: %w", name, addr, err)
		}
		info := &registry.Info{ServiceName: name, Addr: tcpAddr, Weight: 1, Tags: tags}
		if err := reg.Register(info); err != nil {
			return fmt.Errorf("consul register %s: %w", name, err)
		}
		infos = append(infos, info)
		return nil
	}
	deregister := func() {
		for _, info := range infos {
			if err := reg.Deregister(info); err != nil {
				klog.Warnf("consul deregister %s failed: %v", info.ServiceName, err)
			}
		}
	}
	if err := add(serviceName, httpAddr, map[string]string{"protocol": "http"}); err != nil {
		return nil, err
	}
	if metricsAddr != "" {
		if err := add("prometheus", metricsAddr, map[string]string{"service": serviceName}); err != nil {
			deregister()
			return nil, err
		}
	}
	klog.Infof("consul registered service=%s addr=%s metrics=%s", serviceName, httpAddr, metricsAddr)
	return deregister, nil
}

func normalizeAddr(addr string) string {
	if !strings.Contains(addr, ":") {
		return ":" + addr
	}
	return addr
}
