// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package plugins

import (
	"context"
	"net/url"
	"strings"

	"github.com/NVIDIA/sos/pkg/plugin"
	"github.com/NVIDIA/sos/pkg/policy"
)

func init() {
	plugin.MustRegister(&plugin.Plugin{
		Name:        "networking",
		Description: "Network and network devices configuration",
		Families:    []string{policy.FamilyIndependent},
		Profiles:    []string{ProfileNetwork, ProfileHardware, ProfileSystem},
		Options: []plugin.OptionSpec{
			{Name: "traceroute", Description: "collect a traceroute to the upload endpoint", Type: plugin.OptionBool, Default: false},
			{Name: "ethtool", Description: "run ethtool for every network device", Type: plugin.OptionBool, Default: true},
			{Name: "eepromdump", Description: "collect 'ethtool -e' for all devices", Type: plugin.OptionBool, Default: false},
		},
		Setup: setupNetworking,
	})
}

var ethtoolOptions = []string{"", "-d", "-i", "-k", "-S", "-T", "-a", "-c", "-g", "-l", "--show-priv-flags"}

func setupNetworking(ctx context.Context, c *plugin.Context) error {
	c.AddCopy(ctx,
		"/proc/net",
		"/etc/nsswitch.conf",
		"/etc/yp.conf",
		"/etc/inetd.conf",
		"/etc/xinetd.conf",
		"/etc/xinetd.d",
		"/etc/host*",
		"/etc/resolv.conf",
		"/etc/network*",
		"/etc/nftables",
		"/etc/sysconfig/nftables.conf",
		"/etc/nftables.conf",
		"/etc/dnsmasq*",
		"/etc/iproute2",
		"/sys/class/net/*/device/numa_node",
		"/sys/class/net/*/flags",
		"/sys/class/net/*/statistics",
		"/proc/sys/net",
	)
	c.AddForbiddenPath(
		"/proc/net/rpc/use-gss-proxy",
		"/proc/net/rpc/*/channel",
		"/proc/net/rpc/*/flush",
		"/proc/net/cdp",
		"/sys/net/cdp",
		"/proc/net/eicon",
	)

	c.AddCmdOutput(ctx,
		plugin.Command{Cmd: "ip -d address", RootSymlink: "ip_addr", Tags: []string{"ip_addr"}},
		plugin.Command{Cmd: "ip -o addr", Tags: []string{"ip_addr"}},
		plugin.Command{Cmd: "ip route show table all", RootSymlink: "ip_route", Tags: []string{"ip_route"}},
		plugin.Command{Cmd: "ip -s -s neigh show", Tags: []string{"ip_neigh_show"}},
		plugin.Command{Cmd: "ip -d route show cache"},
		plugin.Command{Cmd: "ip -4 rule list"},
		plugin.Command{Cmd: "ip -6 rule list"},
		plugin.Command{Cmd: "ip -s -d link", Tags: []string{"ip_s_link"}},
		plugin.Command{Cmd: "ip netns"},
		plugin.Command{Cmd: "ip mroute show"},
		plugin.Command{Cmd: "ip maddr show"},
		plugin.Command{Cmd: "netstat -neopa", RootSymlink: "netstat"},
		plugin.Command{Cmd: "netstat -s"},
		plugin.Command{Cmd: "ss -peaonmi", Tags: []string{"ss"}},
		plugin.Command{Cmd: "nstat -zas"},
		plugin.Command{Cmd: "nft list ruleset", Pred: &plugin.Predicate{Kmods: []string{"nf_tables"}}},
		plugin.Command{Cmd: "iptables -vnxL", Pred: &plugin.Predicate{Kmods: []string{"ip_tables", "iptable_filter"}}},
		plugin.Command{Cmd: "ip6tables -vnxL", Pred: &plugin.Predicate{Kmods: []string{"ip6_tables", "ip6table_filter"}}},
		plugin.Command{Cmd: "tc -s qdisc show"},
		plugin.Command{Cmd: "biosdevname -d"},
	)

	if c.Options().Bool("traceroute") {
		if u, err := url.Parse(c.Env().Policy.DefaultUploadURL()); err == nil && u.Hostname() != "" {
			c.AddCmdOutput(ctx, plugin.Command{Cmd: "traceroute -n " + u.Hostname()})
		}
	}

	if c.Options().Bool("ethtool") {
		devs := networkDevices(ctx, c)
		for _, dev := range devs {
			for _, opt := range ethtoolOptions {
				cmd := "ethtool " + dev
				if opt != "" {
					cmd = "ethtool " + opt + " " + dev
				}
				c.AddCmdOutput(ctx, plugin.Command{Cmd: cmd})
			}
			if c.Options().Bool("eepromdump") {
				c.AddCmdOutput(ctx, plugin.Command{Cmd: "ethtool -e " + dev})
			}
		}
	}

	// wireless pre-shared keys in network scripts
	c.DoPathRegexSub(`/etc/sysconfig/network-scripts/ifcfg-.*|/etc/network/interfaces.*`,
		`(?m)^(\s*(?:WPA_PSK|wpa-psk|psk)\s*[=\s]\s*).*$`, "${1}********")
	return nil
}

// networkDevices lists link names from 'ip -o link', without the loopback.
func networkDevices(ctx context.Context, c *plugin.Context) []string {
	res, err := c.ExecCmd(ctx, "ip -o link")
	if err != nil || res.Status != 0 {
		return nil
	}
	return parseIPLink(string(res.Output))
}

func parseIPLink(out string) []string {
	var devs []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		name := strings.TrimSuffix(fields[1], ":")
		if i := strings.Index(name, "@"); i >= 0 {
			name = name[:i]
		}
		if name == "" || name == "lo" {
			continue
		}
		devs = append(devs, name)
	}
	return devs
}
