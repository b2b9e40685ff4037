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

package cli

import (
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/sos/pkg/config"
	"github.com/NVIDIA/sos/pkg/defaults"
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "batch",
			Usage: "Do not prompt; use defaults for every interactive question",
		},
		&cli.BoolFlag{
			Name:    "quiet",
			Aliases: []string{"q"},
			Usage:   "Only print fatal errors",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Increase verbosity, may be repeated",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Level of the process log on stderr (debug, info, warn, error)",
			Sources: cli.EnvVars(defaults.EnvLogLevel),
			Value:   "warn",
		},
		&cli.StringFlag{
			Name:  "tmp-dir",
			Usage: "Directory for temporary files and the final archive",
		},
		&cli.StringFlag{
			Name:  "config-file",
			Usage: "Configuration file, YAML or JSON",
			Value: defaults.ConfigFile,
		},
		&cli.StringFlag{
			Name:   "presets-dir",
			Usage:  "Directory holding user presets",
			Value:  defaults.PresetsDir,
			Hidden: true,
		},
		&cli.StringFlag{
			Name:  "metrics-file",
			Usage: "Write run metrics in Prometheus text format to this file",
		},
	}
}

func reportFlags() []cli.Flag {
	return []cli.Flag{
		// Plugin control
		&cli.StringSliceFlag{
			Name:    "only-plugins",
			Aliases: []string{"o"},
			Usage:   "Run only these plugins, comma separated",
		},
		&cli.StringSliceFlag{
			Name:    "skip-plugins",
			Aliases: []string{"n"},
			Usage:   "Disable these plugins, comma separated",
		},
		&cli.StringSliceFlag{
			Name:    "enable-plugins",
			Aliases: []string{"e"},
			Usage:   "Enable these plugins, comma separated",
		},
		&cli.StringSliceFlag{
			Name:    "plugin-option",
			Aliases: []string{"k"},
			Usage:   "Plugin option as plugin.option=value, may be repeated",
		},
		&cli.BoolFlag{
			Name:    "alloptions",
			Aliases: []string{"a"},
			Usage:   "Enable all boolean plugin options",
		},
		&cli.StringSliceFlag{
			Name:    "profile",
			Aliases: []string{"p"},
			Usage:   "Enable plugins of these profiles, comma separated",
		},
		&cli.StringFlag{
			Name:  "preset",
			Usage: "Apply the named preset",
		},
		&cli.StringFlag{
			Name:  "plugin-dir",
			Usage: "Directory with declarative plugin definitions",
		},
		// Capture control
		&cli.BoolFlag{
			Name:  "all-logs",
			Usage: "Collect all available logs regardless of size",
		},
		&cli.IntFlag{
			Name:  "log-size",
			Usage: "Limit collected logs to this many MiB per copy spec",
		},
		&cli.StringFlag{
			Name:  "since",
			Usage: "Only collect logs newer than YYYYMMDD[HHMMSS]",
		},
		&cli.BoolFlag{
			Name:  "allow-system-changes",
			Usage: "Run commands even if they may change the system",
		},
		&cli.IntFlag{
			Name:  "plugin-timeout",
			Usage: "Timeout in seconds for each plugin",
		},
		&cli.IntFlag{
			Name:  "cmd-timeout",
			Usage: "Timeout in seconds for each command",
		},
		&cli.IntFlag{
			Name:  "threads",
			Usage: "Number of plugins run in parallel",
		},
		&cli.StringSliceFlag{
			Name:  "skip-commands",
			Usage: "Do not run commands matching these globs",
		},
		&cli.StringSliceFlag{
			Name:  "skip-files",
			Usage: "Do not collect files matching these globs",
		},
		&cli.BoolFlag{
			Name:  "no-env-vars",
			Usage: "Do not collect environment variables",
		},
		&cli.StringFlag{
			Name:  "sysroot",
			Usage: "Root of the filesystem to inspect",
		},
		&cli.StringFlag{
			Name:  "container-runtime",
			Usage: "Container runtime to inspect, or auto",
		},
		// Output control
		&cli.StringFlag{
			Name:    "compression-type",
			Aliases: []string{"z"},
			Usage:   "Archive compression (auto, gzip, xz, zstd, none)",
		},
		&cli.BoolFlag{
			Name:  "fast-compression",
			Usage: "Compress the archive at the fastest level",
		},
		&cli.StringFlag{
			Name:  "label",
			Usage: "Label added to the archive name",
		},
		&cli.StringFlag{
			Name:    "case-id",
			Aliases: []string{"case"},
			Usage:   "Support case identifier",
		},
		&cli.BoolFlag{
			Name:  "no-report",
			Usage: "Do not write the HTML and text reports",
		},
		&cli.BoolFlag{
			Name:  "no-postproc",
			Usage: "Do not obfuscate passwords in collected data",
		},
		&cli.BoolFlag{
			Name:  "build",
			Usage: "Keep the staging directory instead of creating an archive",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "Record what would be collected without running anything",
		},
		&cli.StringFlag{
			Name:  "encrypt-key",
			Usage: "Encrypt the archive for the OpenPGP public key in this file",
		},
		&cli.StringFlag{
			Name:  "encrypt-pass",
			Usage: "Encrypt the archive with this passphrase",
		},
		&cli.BoolFlag{
			Name:    "clean",
			Aliases: []string{"mask"},
			Usage:   "Obfuscate the finished archive",
		},
		&cli.BoolFlag{
			Name:  "upload",
			Usage: "Upload the finished archive",
		},
	}
}

func cleanFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "map",
			Usage: "Mapping file to load and update",
		},
		&cli.BoolFlag{
			Name:  "no-update",
			Usage: "Do not update the mapping file",
		},
		&cli.IntFlag{
			Name:    "jobs",
			Aliases: []string{"j"},
			Usage:   "Number of archives or hosts processed in parallel",
		},
		&cli.BoolFlag{
			Name:  "keep-binary-files",
			Usage: "Keep binary files instead of removing them",
		},
		&cli.StringFlag{
			Name:  "treat-certificates",
			Usage: "Certificate handling (keep, remove, obfuscate)",
		},
		&cli.StringSliceFlag{
			Name:  "keywords",
			Usage: "Additional words to obfuscate",
		},
		&cli.StringFlag{
			Name:  "keyword-file",
			Usage: "File with one keyword per line",
		},
		&cli.StringSliceFlag{
			Name:  "usernames",
			Usage: "User names to obfuscate",
		},
		&cli.StringSliceFlag{
			Name:  "domains",
			Usage: "Domains to obfuscate",
		},
		&cli.StringSliceFlag{
			Name:  "disable-parsers",
			Usage: "Parsers to disable",
		},
		&cli.StringSliceFlag{
			Name:  "skip-cleaning-files",
			Usage: "Globs of archive files not to obfuscate",
		},
	}
}

func uploadFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "upload-url",
			Usage: "Upload location",
		},
		&cli.StringFlag{
			Name:  "upload-user",
			Usage: "Upload user name",
		},
		&cli.StringFlag{
			Name:  "upload-pass",
			Usage: "Upload password",
		},
		&cli.StringFlag{
			Name:  "upload-directory",
			Usage: "Remote directory or object prefix",
		},
		&cli.StringFlag{
			Name:  "upload-protocol",
			Usage: "Upload target (auto, https, ftp, sftp, s3, oci, nats)",
		},
		&cli.StringFlag{
			Name:  "upload-method",
			Usage: "HTTP method (auto, put, post)",
		},
		&cli.BoolFlag{
			Name:  "upload-no-ssl-verify",
			Usage: "Do not verify the server certificate",
		},
		&cli.IntFlag{
			Name:  "upload-rate-limit",
			Usage: "Bandwidth limit in KiB/s",
		},
		&cli.StringFlag{
			Name:  "upload-s3-endpoint",
			Usage: "S3 endpoint",
		},
		&cli.StringFlag{
			Name:  "upload-s3-region",
			Usage: "S3 region",
		},
		&cli.StringFlag{
			Name:  "upload-s3-bucket",
			Usage: "S3 bucket",
		},
		&cli.StringFlag{
			Name:  "upload-s3-access-key",
			Usage: "S3 access key",
		},
		&cli.StringFlag{
			Name:  "upload-s3-secret-key",
			Usage: "S3 secret key",
		},
		&cli.StringFlag{
			Name:  "upload-s3-object-prefix",
			Usage: "S3 object key prefix",
		},
	}
}

func collectFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "nodes",
			Usage: "Host names, addresses or regular expressions to collect from",
		},
		&cli.StringFlag{
			Name:  "primary",
			Usage: "Host used to enumerate the cluster",
		},
		&cli.BoolFlag{
			Name:  "no-local",
			Usage: "Do not collect from the local host",
		},
		&cli.StringFlag{
			Name:  "cluster-type",
			Usage: "Cluster profile to use instead of detection",
		},
		&cli.StringSliceFlag{
			Name:    "cluster-option",
			Aliases: []string{"c"},
			Usage:   "Cluster profile option as profile.option=value",
		},
		&cli.StringFlag{
			Name:  "group",
			Usage: "Load the named host group",
		},
		&cli.StringFlag{
			Name:  "save-group",
			Usage: "Save the resolved hosts as a group",
		},
		&cli.StringFlag{
			Name:  "ssh-user",
			Usage: "SSH user",
		},
		&cli.StringFlag{
			Name:  "ssh-key",
			Usage: "SSH private key",
		},
		&cli.IntFlag{
			Name:  "ssh-port",
			Usage: "SSH port",
		},
		&cli.BoolFlag{
			Name:  "password",
			Usage: "Prompt for the SSH password",
		},
		&cli.BoolFlag{
			Name:  "password-per-node",
			Usage: "Prompt for a password for each named node",
		},
		&cli.BoolFlag{
			Name:  "sudo",
			Usage: "Use sudo on non-root connections",
		},
		&cli.BoolFlag{
			Name:  "become-root",
			Usage: "Use su to become root on non-root connections",
		},
		&cli.StringFlag{
			Name:  "transport",
			Usage: "Transport (auto, control_persist, oc, local)",
		},
		&cli.StringFlag{
			Name:  "image",
			Usage: "Container image for debug pod transports",
		},
		&cli.StringFlag{
			Name:    "kubeconfig",
			Usage:   "Path to kubeconfig file",
			Sources: cli.EnvVars("KUBECONFIG"),
		},
		&cli.StringFlag{
			Name:  "namespace",
			Usage: "Namespace for debug pods",
		},
		&cli.IntFlag{
			Name:  "timeout",
			Usage: "Timeout in seconds for each remote report",
		},
	}
}

// applyFlags copies the explicitly set flags over opts.
func applyFlags(cmd *cli.Command, o *config.Options) error {
	setBool(cmd, "batch", &o.Batch)
	setBool(cmd, "quiet", &o.Quiet)
	setString(cmd, "tmp-dir", &o.TmpDir)
	if n := cmd.Count("verbose"); n > 0 {
		o.Verbosity = n
	}

	r := &o.Report
	setList(cmd, "only-plugins", &r.OnlyPlugins)
	setList(cmd, "skip-plugins", &r.SkipPlugins)
	setList(cmd, "enable-plugins", &r.EnablePlugins)
	if cmd.IsSet("plugin-option") {
		r.PluginOptions = append(r.PluginOptions, cmd.StringSlice("plugin-option")...)
	}
	setBool(cmd, "alloptions", &r.AllOptions)
	setList(cmd, "profile", &r.Profiles)
	setString(cmd, "plugin-dir", &r.PluginDir)
	setBool(cmd, "all-logs", &r.AllLogs)
	setInt(cmd, "log-size", &r.LogSize)
	setString(cmd, "since", &r.Since)
	setBool(cmd, "allow-system-changes", &r.AllowSystemChanges)
	setInt(cmd, "plugin-timeout", &r.PluginTimeout)
	setInt(cmd, "cmd-timeout", &r.CmdTimeout)
	setInt(cmd, "threads", &r.Threads)
	setList(cmd, "skip-commands", &r.SkipCommands)
	setList(cmd, "skip-files", &r.SkipFiles)
	setBool(cmd, "no-env-vars", &r.NoEnvVars)
	setString(cmd, "sysroot", &r.Sysroot)
	setString(cmd, "container-runtime", &r.ContainerRuntime)
	setString(cmd, "compression-type", &r.Compression)
	setBool(cmd, "fast-compression", &r.FastCompression)
	setString(cmd, "label", &r.Label)
	setString(cmd, "case-id", &r.CaseID)
	setBool(cmd, "no-report", &r.NoReport)
	setBool(cmd, "no-postproc", &r.NoPostproc)
	setBool(cmd, "build", &r.Build)
	setBool(cmd, "dry-run", &r.DryRun)
	setString(cmd, "encrypt-key", &r.EncryptKey)
	setString(cmd, "encrypt-pass", &r.EncryptPass)
	setBool(cmd, "clean", &r.Clean)
	setBool(cmd, "upload", &r.Upload)
	setString(cmd, "metrics-file", &r.MetricsFile)

	cl := &o.Clean
	setString(cmd, "map", &cl.Map)
	setBool(cmd, "no-update", &cl.NoUpdate)
	setInt(cmd, "jobs", &cl.Jobs)
	setBool(cmd, "keep-binary-files", &cl.KeepBinaryFiles)
	setString(cmd, "treat-certificates", &cl.TreatCertificates)
	setList(cmd, "keywords", &cl.Keywords)
	setString(cmd, "keyword-file", &cl.KeywordFile)
	setList(cmd, "usernames", &cl.Usernames)
	setList(cmd, "domains", &cl.Domains)
	setList(cmd, "disable-parsers", &cl.DisableParsers)
	setList(cmd, "skip-cleaning-files", &cl.SkipCleaningFiles)

	u := &o.Upload
	setString(cmd, "upload-url", &u.URL)
	setString(cmd, "upload-user", &u.User)
	setString(cmd, "upload-pass", &u.Pass)
	setString(cmd, "upload-directory", &u.Directory)
	setString(cmd, "upload-protocol", &u.Protocol)
	setString(cmd, "upload-method", &u.Method)
	setBool(cmd, "upload-no-ssl-verify", &u.NoSSLVerify)
	setInt(cmd, "upload-rate-limit", &u.RateLimit)
	setString(cmd, "upload-s3-endpoint", &u.S3Endpoint)
	setString(cmd, "upload-s3-region", &u.S3Region)
	setString(cmd, "upload-s3-bucket", &u.S3Bucket)
	setString(cmd, "upload-s3-access-key", &u.S3AccessKey)
	setString(cmd, "upload-s3-secret-key", &u.S3SecretKey)
	setString(cmd, "upload-s3-object-prefix", &u.S3ObjectPrefix)

	c := &o.Collect
	setList(cmd, "nodes", &c.Nodes)
	setString(cmd, "primary", &c.Primary)
	setBool(cmd, "no-local", &c.NoLocal)
	setString(cmd, "cluster-type", &c.ClusterType)
	if cmd.IsSet("cluster-option") {
		c.ClusterOptions = append(c.ClusterOptions, cmd.StringSlice("cluster-option")...)
	}
	setString(cmd, "group", &c.Group)
	setString(cmd, "save-group", &c.SaveGroup)
	setString(cmd, "ssh-user", &c.SSHUser)
	setString(cmd, "ssh-key", &c.SSHKey)
	setInt(cmd, "ssh-port", &c.SSHPort)
	setBool(cmd, "password", &c.Password)
	setBool(cmd, "password-per-node", &c.PasswordPerNode)
	setBool(cmd, "sudo", &c.Sudo)
	setBool(cmd, "become-root", &c.BecomeRoot)
	setString(cmd, "transport", &c.Transport)
	setString(cmd, "image", &c.Image)
	setString(cmd, "kubeconfig", &c.Kubeconfig)
	setString(cmd, "namespace", &c.Namespace)
	setInt(cmd, "timeout", &c.Timeout)
	setInt(cmd, "jobs", &c.Jobs)
	return nil
}

func setString(cmd *cli.Command, name string, dst *string) {
	if cmd.IsSet(name) {
		*dst = cmd.String(name)
	}
}

func setBool(cmd *cli.Command, name string, dst *bool) {
	if cmd.IsSet(name) {
		*dst = cmd.Bool(name)
	}
}

func setInt(cmd *cli.Command, name string, dst *int) {
	if cmd.IsSet(name) {
		*dst = cmd.Int(name)
	}
}

// setList accepts repeated flags and comma separated values.
func setList(cmd *cli.Command, name string, dst *[]string) {
	if cmd.IsSet(name) {
		*dst = splitList(cmd.StringSlice(name))
	}
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}
