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

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/NVIDIA/sos/pkg/defaults"
	sosErrors "github.com/NVIDIA/sos/pkg/errors"
)

// Options is the resolved configuration of one invocation.
type Options struct {
	Batch     bool   `json:"batch,omitempty" yaml:"batch,omitempty"`
	Quiet     bool   `json:"quiet,omitempty" yaml:"quiet,omitempty"`
	Verbosity int    `json:"verbosity,omitempty" yaml:"verbosity,omitempty" validate:"min=0"`
	TmpDir    string `json:"tmp_dir,omitempty" yaml:"tmp_dir,omitempty"`

	Report  ReportOptions  `json:"report" yaml:"report"`
	Collect CollectOptions `json:"collect" yaml:"collect"`
	Clean   CleanOptions   `json:"clean" yaml:"clean"`
	Upload  UploadOptions  `json:"upload" yaml:"upload"`
}

// ReportOptions controls a local report run.
type ReportOptions struct {
	OnlyPlugins   []string `json:"only_plugins,omitempty" yaml:"only_plugins,omitempty"`
	SkipPlugins   []string `json:"skip_plugins,omitempty" yaml:"skip_plugins,omitempty"`
	EnablePlugins []string `json:"enable_plugins,omitempty" yaml:"enable_plugins,omitempty"`
	// PluginOptions are "plugin.option=value" assignments.
	PluginOptions []string `json:"plugin_options,omitempty" yaml:"plugin_options,omitempty"`
	AllOptions    bool     `json:"alloptions,omitempty" yaml:"alloptions,omitempty"`
	Profiles      []string `json:"profiles,omitempty" yaml:"profiles,omitempty"`
	Preset        string   `json:"preset,omitempty" yaml:"preset,omitempty"`

	AllLogs bool `json:"all_logs,omitempty" yaml:"all_logs,omitempty"`
	// LogSize is the default copy spec size limit in MiB.
	LogSize int `json:"log_size,omitempty" yaml:"log_size,omitempty" validate:"min=0"`
	// Since is YYYYMMDD[HHMMSS].
	Since              string `json:"since,omitempty" yaml:"since,omitempty"`
	AllowSystemChanges bool   `json:"allow_system_changes,omitempty" yaml:"allow_system_changes,omitempty"`
	// PluginTimeout and CmdTimeout are in seconds.
	PluginTimeout int      `json:"plugin_timeout,omitempty" yaml:"plugin_timeout,omitempty" validate:"min=0"`
	CmdTimeout    int      `json:"cmd_timeout,omitempty" yaml:"cmd_timeout,omitempty" validate:"min=0"`
	Threads       int      `json:"threads,omitempty" yaml:"threads,omitempty" validate:"min=1"`
	SkipCommands  []string `json:"skip_commands,omitempty" yaml:"skip_commands,omitempty"`
	SkipFiles     []string `json:"skip_files,omitempty" yaml:"skip_files,omitempty"`

	Compression string `json:"compression_type,omitempty" yaml:"compression_type,omitempty" validate:"oneof=auto gzip xz zstd none"`
	Label       string `json:"label,omitempty" yaml:"label,omitempty"`
	CaseID      string `json:"case_id,omitempty" yaml:"case_id,omitempty"`
	NoReport    bool   `json:"no_report,omitempty" yaml:"no_report,omitempty"`
	NoPostproc  bool   `json:"no_postproc,omitempty" yaml:"no_postproc,omitempty"`
	NoEnvVars   bool   `json:"no_env_vars,omitempty" yaml:"no_env_vars,omitempty"`
	Build       bool   `json:"build,omitempty" yaml:"build,omitempty"`
	DryRun      bool   `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
	EncryptKey  string `json:"encrypt_key,omitempty" yaml:"encrypt_key,omitempty"`
	EncryptPass string `json:"-" yaml:"-"`

	Sysroot          string `json:"sysroot,omitempty" yaml:"sysroot,omitempty"`
	ContainerRuntime string `json:"container_runtime,omitempty" yaml:"container_runtime,omitempty"`
	PluginDir        string `json:"plugin_dir,omitempty" yaml:"plugin_dir,omitempty"`
	MetricsFile      string `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty"`

	// Clean runs the cleaner over the finished archive.
	Clean bool `json:"clean,omitempty" yaml:"clean,omitempty"`
	// Upload sends the finished archive to the upload target.
	Upload bool `json:"upload,omitempty" yaml:"upload,omitempty"`

	// FastCompression trades archive size for speed at the compressor.
	FastCompression bool `json:"fast_compression,omitempty" yaml:"fast_compression,omitempty"`
}

// CollectOptions controls a multi-host collection.
type CollectOptions struct {
	Nodes          []string `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	Primary        string   `json:"primary,omitempty" yaml:"primary,omitempty"`
	NoLocal        bool     `json:"no_local,omitempty" yaml:"no_local,omitempty"`
	ClusterType    string   `json:"cluster_type,omitempty" yaml:"cluster_type,omitempty"`
	ClusterOptions []string `json:"cluster_options,omitempty" yaml:"cluster_options,omitempty"`
	Group          string   `json:"group,omitempty" yaml:"group,omitempty"`
	SaveGroup      string   `json:"save_group,omitempty" yaml:"save_group,omitempty"`

	SSHUser         string `json:"ssh_user,omitempty" yaml:"ssh_user,omitempty"`
	SSHKey          string `json:"ssh_key,omitempty" yaml:"ssh_key,omitempty"`
	SSHPort         int    `json:"ssh_port,omitempty" yaml:"ssh_port,omitempty" validate:"min=0,max=65535"`
	Password        bool   `json:"password,omitempty" yaml:"password,omitempty"`
	PasswordPerNode bool   `json:"password_per_node,omitempty" yaml:"password_per_node,omitempty"`
	Sudo            bool   `json:"sudo,omitempty" yaml:"sudo,omitempty"`
	BecomeRoot      bool   `json:"become_root,omitempty" yaml:"become_root,omitempty"`
	Transport       string `json:"transport,omitempty" yaml:"transport,omitempty" validate:"oneof=auto control_persist oc local"`
	Image           string `json:"image,omitempty" yaml:"image,omitempty"`
	Kubeconfig      string `json:"kubeconfig,omitempty" yaml:"kubeconfig,omitempty"`
	Namespace       string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	// Timeout bounds each remote report run, in seconds.
	Timeout int `json:"timeout,omitempty" yaml:"timeout,omitempty" validate:"min=0"`
	Jobs    int `json:"jobs,omitempty" yaml:"jobs,omitempty" validate:"min=1"`

	// Password values gathered at run time; never persisted.
	SSHPassword   string            `json:"-" yaml:"-"`
	NodePasswords map[string]string `json:"-" yaml:"-"`
	BecomePass    string            `json:"-" yaml:"-"`
}

// CleanOptions controls the cleaner.
type CleanOptions struct {
	Map               string   `json:"map_file,omitempty" yaml:"map_file,omitempty"`
	NoUpdate          bool     `json:"no_update,omitempty" yaml:"no_update,omitempty"`
	Jobs              int      `json:"jobs,omitempty" yaml:"jobs,omitempty" validate:"min=1"`
	KeepBinaryFiles   bool     `json:"keep_binary_files,omitempty" yaml:"keep_binary_files,omitempty"`
	TreatCertificates string   `json:"treat_certificates,omitempty" yaml:"treat_certificates,omitempty" validate:"oneof=keep remove obfuscate"`
	Keywords          []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	KeywordFile       string   `json:"keyword_file,omitempty" yaml:"keyword_file,omitempty"`
	Usernames         []string `json:"usernames,omitempty" yaml:"usernames,omitempty"`
	Domains           []string `json:"domains,omitempty" yaml:"domains,omitempty"`
	DisableParsers    []string `json:"disable_parsers,omitempty" yaml:"disable_parsers,omitempty"`
	SkipCleaningFiles []string `json:"skip_cleaning_files,omitempty" yaml:"skip_cleaning_files,omitempty"`
}

// UploadOptions controls the upload dispatcher.
type UploadOptions struct {
	URL         string `json:"upload_url,omitempty" yaml:"upload_url,omitempty"`
	User        string `json:"upload_user,omitempty" yaml:"upload_user,omitempty"`
	Pass        string `json:"-" yaml:"-"`
	Directory   string `json:"upload_directory,omitempty" yaml:"upload_directory,omitempty"`
	Protocol    string `json:"upload_protocol,omitempty" yaml:"upload_protocol,omitempty"`
	Method      string `json:"upload_method,omitempty" yaml:"upload_method,omitempty" validate:"oneof=auto put post"`
	NoSSLVerify bool   `json:"upload_no_ssl_verify,omitempty" yaml:"upload_no_ssl_verify,omitempty"`
	// RateLimit caps upload bandwidth in KiB/s; zero is unlimited.
	RateLimit int `json:"upload_rate_limit,omitempty" yaml:"upload_rate_limit,omitempty" validate:"min=0"`

	S3Endpoint     string `json:"upload_s3_endpoint,omitempty" yaml:"upload_s3_endpoint,omitempty"`
	S3Region       string `json:"upload_s3_region,omitempty" yaml:"upload_s3_region,omitempty"`
	S3Bucket       string `json:"upload_s3_bucket,omitempty" yaml:"upload_s3_bucket,omitempty"`
	S3AccessKey    string `json:"upload_s3_access_key,omitempty" yaml:"upload_s3_access_key,omitempty"`
	S3SecretKey    string `json:"-" yaml:"-"`
	S3ObjectPrefix string `json:"upload_s3_object_prefix,omitempty" yaml:"upload_s3_object_prefix,omitempty"`
}

// Defaults returns the built-in option values.
func Defaults() *Options {
	return &Options{
		Report: ReportOptions{
			LogSize:       defaults.LogSizeMiB,
			PluginTimeout: int(defaults.PluginTimeout.Seconds()),
			CmdTimeout:    int(defaults.CommandTimeout.Seconds()),
			Threads:       defaults.Threads,
			Compression:   "auto",
			PluginDir:     defaults.PluginDir,
		},
		Collect: CollectOptions{
			Transport: "auto",
			Timeout:   int(defaults.CollectorTimeout.Seconds()),
			Jobs:      defaults.Jobs,
			SSHUser:   "root",
			SSHPort:   22,
		},
		Clean: CleanOptions{
			Map:               defaults.MapFile,
			Jobs:              defaults.Jobs,
			TreatCertificates: "obfuscate",
		},
		Upload: UploadOptions{
			Method: "auto",
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks option values and reports every offending field.
func (o *Options) Validate() error {
	err := validate.Struct(o)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return sosErrors.Wrap(sosErrors.ErrCodeConfig, "invalid options", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %v)", e.Namespace(), e.Tag(), e.Param(), e.Value()))
	}
	return sosErrors.New(sosErrors.ErrCodeConfig, "invalid options: "+strings.Join(msgs, "; "))
}

// PluginTimeoutDuration returns the global plugin timeout.
func (r *ReportOptions) PluginTimeoutDuration() time.Duration {
	return time.Duration(r.PluginTimeout) * time.Second
}

// CmdTimeoutDuration returns the global command timeout.
func (r *ReportOptions) CmdTimeoutDuration() time.Duration {
	return time.Duration(r.CmdTimeout) * time.Second
}

// TimeoutDuration returns the per-host report timeout.
func (c *CollectOptions) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}
