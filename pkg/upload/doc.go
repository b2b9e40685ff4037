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

// Package upload delivers finished archives to support endpoints.
//
// A Dispatcher resolves the target from --upload-protocol, the URL scheme
// or the policy's default location, gathers credentials and hands the
// archive to the Target. The archive stays on disk whatever the outcome;
// a failed upload is an UPLOAD error naming the kept file.
//
// Targets register themselves by name and scheme:
//
//	https   http(s) PUT to <url>/<archive>, or multipart POST
//	ftp     FTP STOR, anonymous unless a user is known
//	sftp    SFTP over SSH with password or agent authentication
//	s3      S3 compatible object storage
//	oci     single-layer OCI artifact pushed to a registry
//	nats    NATS JetStream object store bucket
//
// Credentials resolve in order: options, URL userinfo, the SOSUPLOADUSER
// and SOSUPLOADPASS environment variables and, outside batch mode with a
// terminal on stdin, a password prompt. --upload-rate-limit paces every
// streaming target through a token bucket.
package upload
