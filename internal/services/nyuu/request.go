package nyuu

import (
	"strconv"
	"strings"

	"juicenet/internal/config"
)

// Request describes one Nyuu upload.
type Request struct {
	Files       []string
	NZBPath     string
	Server      config.Server
	Connections int
	ArticleSize int64
	Poster      string
	Groups      []string
	Subject     string
	// NZBSubject overrides the subject written into the NZB when articles
	// carry obfuscated subjects.
	NZBSubject        string
	ObfuscateArticles bool
	DumpFailedPosts   string
	ConfigFile        string
	ExtraArgs         []string
	Dir               string
}

// RepostRequest describes a raw article repost.
type RepostRequest struct {
	Path        string
	Server      config.Server
	Connections int
	ConfigFile  string
}

// ExitArticlesFailed is Nyuu's exit status when some articles could not be posted.
const ExitArticlesFailed = 32

// BuildArgs returns the Nyuu arguments for an upload.
func BuildArgs(req Request) []string {
	args := configArgs(req.ConfigFile)
	args = append(args, serverArgs(req.Server, req.Connections)...)
	if req.ArticleSize > 0 {
		args = append(args, "-a", strconv.FormatInt(req.ArticleSize, 10))
	}
	if req.Poster != "" {
		args = append(args, "-f", req.Poster)
	}
	if len(req.Groups) > 0 {
		args = append(args, "-g", strings.Join(req.Groups, ","))
	}
	if req.Subject != "" {
		args = append(args, "-s", req.Subject)
	}
	if req.NZBSubject != "" {
		args = append(args, "--nzb-subject", req.NZBSubject)
	}
	if req.ObfuscateArticles {
		args = append(args, "--obfuscate-articles")
	}
	if req.DumpFailedPosts != "" {
		args = append(args, "--dump-failed-posts", req.DumpFailedPosts)
	}
	args = append(args, "--progress", "log:1s")
	args = append(args, "-o", req.NZBPath, "-O")
	args = append(args, req.ExtraArgs...)
	args = append(args, "--")
	return append(args, req.Files...)
}

// BuildRepostArgs returns the Nyuu arguments for reposting a raw article dump.
func BuildRepostArgs(req RepostRequest) []string {
	args := configArgs(req.ConfigFile)
	args = append(args, serverArgs(req.Server, req.Connections)...)
	return append(args, "--delete-raw-posts", "--input-raw-posts", req.Path)
}

func configArgs(path string) []string {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	return []string{"--config", path}
}

func serverArgs(server config.Server, connections int) []string {
	args := []string{"-h", server.Host}
	if server.Port > 0 {
		args = append(args, "-P", strconv.Itoa(server.Port))
	}
	if server.TLS {
		args = append(args, "-S")
	}
	if server.IgnoreCert {
		args = append(args, "--ignore-cert")
	}
	if server.Username != "" {
		args = append(args, "-u", server.Username)
	}
	if server.Password != "" {
		args = append(args, "-p", server.Password)
	}
	if connections > 0 {
		args = append(args, "-n", strconv.Itoa(connections))
	}
	return args
}

// RedactArgs masks the password argument for logging.
func RedactArgs(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out)-1; i++ {
		if out[i] == "-p" || out[i] == "--password" {
			out[i+1] = "***"
			i++
		}
	}
	return out
}
