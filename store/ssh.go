package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"os/user"
	"path"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/sftp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"plansync/report"
)

// SSH is the login-session transport. Bulk copies go through the SFTP
// subsystem; remote commands run in exec sessions. When the server lacks the
// SFTP subsystem, copies fall back once to streaming through a remote cat,
// a compatibility path for minimal device images.
type SSH struct {
	client  *ssh.Client
	sf      *sftp.Client
	sfErr   error
	sfTried bool
	root    string
	timeout time.Duration
}

// NewSSH dials host (user@host accepted, port 22 default) and returns the
// transport rooted at opts.RemoteRoot. A failed dial is SSH_UNREACHABLE.
func NewSSH(opts Options) (*SSH, error) {
	username, host := splitUserHost(opts.Host)
	port := opts.Port
	if port == 0 {
		port = 22
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	cc := &ssh.ClientConfig{
		User:            username,
		Auth:            authMethods(opts.Password),
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         opts.Timeout,
	}

	client, err := ssh.Dial("tcp", addr, cc)
	if err != nil {
		return nil, report.Wrap(report.CodeSSHUnreachable, err, "cannot reach %s", addr)
	}
	logrus.Infof("connected to %s as %s", addr, username)

	return &SSH{client: client, root: opts.RemoteRoot, timeout: opts.Timeout}, nil
}

func splitUserHost(s string) (string, string) {
	if i := strings.IndexByte(s, '@'); i >= 0 {
		return s[:i], s[i+1:]
	}
	if u, err := user.Current(); err == nil {
		return u.Username, s
	}
	return "root", s
}

func authMethods(password string) []ssh.AuthMethod {
	var ms []ssh.AuthMethod
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			ms = append(ms, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}
	if password != "" {
		ms = append(ms, ssh.Password(password))
	}
	return ms
}

func (s *SSH) Kind() Kind { return KindSSH }

func (s *SSH) realPath(name string) string {
	return path.Join(s.root, name)
}

// sftpClient opens the SFTP subsystem once; the error is remembered so every
// later copy goes straight to the fallback.
func (s *SSH) sftpClient() (*sftp.Client, error) {
	if !s.sfTried {
		s.sfTried = true
		s.sf, s.sfErr = sftp.NewClient(s.client, sftp.UseConcurrentWrites(true))
		if s.sfErr != nil {
			logrus.Warnf("sftp subsystem unavailable, falling back to remote cat: %v", s.sfErr)
		}
	}
	return s.sf, s.sfErr
}

func (s *SSH) HealthCheck() error {
	_, err := s.RunCommand(NewCommand("true"))
	return err
}

func (s *SSH) SendFile(localPath, remotePath string) error {
	st, err := os.Stat(localPath)
	if err != nil {
		return report.Wrap(report.CodePathNotFound, err, "%s", localPath)
	}

	var merr *multierror.Error
	err = s.push(localPath, remotePath)
	if err == nil {
		return nil
	}
	merr = multierror.Append(merr, err)
	logrus.Warnf("sftp copy of %s failed, retrying over remote cat: %v", localPath, err)

	if err = s.catPush(localPath, remotePath); err == nil {
		return nil
	}
	merr = multierror.Append(merr, err)
	return report.Wrap(report.CodeSCPFailed, merr.ErrorOrNil(),
		"copy %s (%d bytes) to %s", localPath, st.Size(), remotePath)
}

func (s *SSH) push(localPath, remotePath string) error {
	c, err := s.sftpClient()
	if err != nil {
		return err
	}
	r, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer r.Close()

	return runBounded(s.timeout, report.CodeSCPFailed, "sftp push "+remotePath, func() error {
		dest := s.realPath(remotePath)
		if err := c.MkdirAll(path.Dir(dest)); err != nil {
			return err
		}
		w, err := c.Create(dest)
		if err != nil {
			return err
		}
		defer w.Close()
		_, err = io.Copy(w, r)
		return err
	})
}

func (s *SSH) catPush(localPath, remotePath string) error {
	r, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer r.Close()

	dest := s.realPath(remotePath)
	if _, err := s.RunCommand(NewCommand("mkdir", "-p", path.Dir(dest))); err != nil {
		return err
	}
	_, err = s.runLine(NewCommand("cat").RedirectTo(dest).String(), r, nil)
	return err
}

func (s *SSH) ReceiveFile(remotePath, localPath string) error {
	var merr *multierror.Error
	err := s.pull(remotePath, localPath)
	if err == nil {
		return nil
	}
	merr = multierror.Append(merr, err)
	logrus.Warnf("sftp copy of %s failed, retrying over remote cat: %v", remotePath, err)

	if err = s.catPull(remotePath, localPath); err == nil {
		return nil
	}
	merr = multierror.Append(merr, err)
	return report.Wrap(report.CodeSCPFailed, merr.ErrorOrNil(),
		"copy %s to %s", remotePath, localPath)
}

func (s *SSH) pull(remotePath, localPath string) error {
	c, err := s.sftpClient()
	if err != nil {
		return err
	}
	w, err := os.OpenFile(localPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer w.Close()

	return runBounded(s.timeout, report.CodeSCPFailed, "sftp pull "+remotePath, func() error {
		r, err := c.Open(s.realPath(remotePath))
		if err != nil {
			return err
		}
		defer r.Close()
		_, err = io.Copy(w, r)
		return err
	})
}

func (s *SSH) catPull(remotePath, localPath string) error {
	w, err := os.OpenFile(localPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer w.Close()

	_, err = s.runLine(NewCommand("cat", s.realPath(remotePath)).String(), nil, w)
	return err
}

func (s *SSH) ReadDir(dir string) ([]fs.FileInfo, error) {
	if c, err := s.sftpClient(); err == nil {
		entries, err := c.ReadDir(s.realPath(dir))
		if err != nil {
			return nil, report.Wrap(report.CodeSSHCmdFailed, err, "list %s", dir)
		}
		return entries, nil
	}

	// subsystem-less servers: names only, -p marks directories
	out, err := s.RunCommand(NewCommand("ls", "-A", "-p", s.realPath(dir)))
	if err != nil {
		return nil, err
	}
	var fis []fs.FileInfo
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fis = append(fis, SimpleFileInfo{
			FName:  strings.TrimSuffix(line, "/"),
			FIsDir: strings.HasSuffix(line, "/"),
		})
	}
	return fis, nil
}

func (s *SSH) Stat(name string) (fs.FileInfo, error) {
	c, err := s.sftpClient()
	if err != nil {
		return nil, err
	}
	fi, err := c.Stat(s.realPath(name))
	if err != nil {
		return nil, report.Wrap(report.CodePathNotFound, err, "%s", name)
	}
	return fi, nil
}

func (s *SSH) Rename(old, new string) error {
	if c, err := s.sftpClient(); err == nil {
		if err := c.PosixRename(s.realPath(old), s.realPath(new)); err == nil {
			return nil
		} else if err := c.Rename(s.realPath(old), s.realPath(new)); err == nil {
			return nil
		}
	}
	_, err := s.RunCommand(NewCommand("mv", "-f", s.realPath(old), s.realPath(new)))
	return err
}

func (s *SSH) Remove(name string) error {
	if c, err := s.sftpClient(); err == nil {
		return c.Remove(s.realPath(name))
	}
	_, err := s.RunCommand(NewCommand("rm", "-f", "--", s.realPath(name)))
	return err
}

func (s *SSH) MkdirAll(name string) error {
	if c, err := s.sftpClient(); err == nil {
		return c.MkdirAll(s.realPath(name))
	}
	_, err := s.RunCommand(NewCommand("mkdir", "-p", s.realPath(name)))
	return err
}

// Digest asks the remote side for the sha256 of a file. A missing hashing
// tool is distinguished from every other failure.
func (s *SSH) Digest(name string) (string, error) {
	return digestFromOutput(s.RunCommand(NewCommand("sha256sum", s.realPath(name))))
}

// digestFromOutput narrows a sha256sum run to the integrity taxonomy: a
// missing tool and unparseable output both mean the digest cannot be had,
// which is CHECKSUM_UNAVAILABLE, not a generic command failure.
func digestFromOutput(out string, err error) (string, error) {
	if err != nil {
		if report.CodeOf(err) == report.CodeMissingTool {
			return "", report.Wrap(report.CodeChecksumUnavailable, err,
				"no sha256sum on remote host")
		}
		return "", err
	}
	fields := strings.Fields(out)
	if len(fields) == 0 || len(fields[0]) != 64 {
		return "", report.Errf(report.CodeChecksumUnavailable,
			"unparseable sha256sum output %q", strings.TrimSpace(out))
	}
	return fields[0], nil
}

func (s *SSH) RunCommand(cmd *Command) (string, error) {
	return s.runLine(cmd.String(), nil, nil)
}

func (s *SSH) runLine(line string, stdin io.Reader, stdout io.Writer) (string, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return "", report.Wrap(report.CodeSSHCmdFailed, err, "open session")
	}
	defer sess.Close()

	var out, errb bytes.Buffer
	if stdout == nil {
		sess.Stdout = &out
	} else {
		sess.Stdout = stdout
	}
	sess.Stderr = &errb
	sess.Stdin = stdin

	logrus.Debugf("remote: %s", line)
	err = runBounded(s.timeout, report.CodeSSHCmdFailed, "remote command", func() error {
		return sess.Run(line)
	})
	if err != nil {
		return out.String(), classifyRemoteErr(err, errb.String())
	}
	return out.String(), nil
}

// classifyRemoteErr maps a remote command failure onto the taxonomy. The
// shell reports an unresolvable program name as exit status 127, which is
// the only way to tell "tool missing" apart from "tool failed".
func classifyRemoteErr(err error, stderr string) error {
	var es interface{ ExitStatus() int }
	if errors.As(err, &es) && es.ExitStatus() == 127 {
		return report.Wrap(report.CodeMissingTool, err, "%s", strings.TrimSpace(stderr))
	}
	var oe *report.OpError
	if errors.As(err, &oe) {
		return err // already classified (timeout)
	}
	return report.Wrap(report.CodeSSHCmdFailed, err, "%s", strings.TrimSpace(stderr))
}

func (s *SSH) Close() error {
	if s.sf != nil {
		_ = s.sf.Close()
	}
	return s.client.Close()
}
