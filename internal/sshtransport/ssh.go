// Package sshtransport implements the low-level SSH dial, session, and
// SFTP-staging primitives the gate transport (internal/gate) builds on:
// auth method selection (key file, password, agent), dial, run-command,
// and file upload, all driven by the shared types.Host connection
// attributes.
package sshtransport

import (
	"fmt"
	"io"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/eniac111/ftl2/internal/types"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// Dial opens an SSH connection to host using password, key-file, or
// SSH-agent auth, in that order of availability, driven by types.Host's
// dedicated connection fields.
func Dial(host types.Host) (*ssh.Client, error) {
	var authMethods []ssh.AuthMethod

	if host.Password != "" {
		authMethods = append(authMethods, ssh.Password(host.Password))
	}

	if host.KeyPath != "" {
		key, err := os.ReadFile(host.KeyPath)
		if err != nil {
			return nil, types.NewHostError(types.KindTransportLost, host.Name, "failed to read SSH key", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, types.NewHostError(types.KindTransportLost, host.Name, "failed to parse SSH key", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	if host.KeyPath == "" && host.Password == "" {
		if usr, err := user.Current(); err == nil {
			defaultKeyPath := filepath.Join(usr.HomeDir, ".ssh", "id_rsa")
			if key, err := os.ReadFile(defaultKeyPath); err == nil {
				if signer, err := ssh.ParsePrivateKey(key); err == nil {
					authMethods = append(authMethods, ssh.PublicKeys(signer))
				}
			}
		}
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			authMethods = append(authMethods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	if len(authMethods) == 0 {
		return nil, types.NewHostError(types.KindTransportLost, host.Name, "no SSH authentication methods available", nil)
	}

	port := host.Port
	if port == 0 {
		port = 22
	}
	addr := host.Address
	if addr == "" {
		addr = host.Name
	}

	config := &ssh.ClientConfig{
		User:            host.User,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // fleet targets are not verified against a known_hosts store in this implementation
		Timeout:         15 * time.Second,
	}

	client, err := ssh.Dial("tcp", fmt.Sprintf("%s:%d", addr, port), config)
	if err != nil {
		return nil, types.NewHostError(types.KindTransportLost, host.Name, "SSH dial failed", err)
	}
	return client, nil
}

// UploadBytes copies data to remotePath over SFTP, used by the bundle
// stager (internal/gate) to place an archive on the target before
// launching the gate process.
func UploadBytes(client *ssh.Client, data []byte, remotePath string) error {
	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("sftp client: %w", err)
	}
	defer sftpClient.Close()

	if err := sftpClient.MkdirAll(filepath.Dir(remotePath)); err != nil {
		return fmt.Errorf("sftp mkdir: %w", err)
	}

	dst, err := sftpClient.Create(remotePath)
	if err != nil {
		return fmt.Errorf("sftp create %q: %w", remotePath, err)
	}
	defer dst.Close()

	if _, err := dst.Write(data); err != nil {
		return fmt.Errorf("sftp write %q: %w", remotePath, err)
	}
	return nil
}

// Exists checks whether remotePath is already present, used to decide
// whether a bundle needs (re)staging.
func Exists(client *ssh.Client, remotePath string) (bool, error) {
	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return false, fmt.Errorf("sftp client: %w", err)
	}
	defer sftpClient.Close()

	_, err = sftpClient.Stat(remotePath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// StartProcess launches remoteCommand on client, wiring stdin/stdout for
// the framed gate protocol and stderr for diagnostic capture.
// Callers own the returned session's Close.
func StartProcess(client *ssh.Client, remoteCommand string) (*ssh.Session, io.WriteCloser, io.Reader, io.Reader, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("ssh session: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, nil, nil, nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, nil, nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		session.Close()
		return nil, nil, nil, nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := session.Start(remoteCommand); err != nil {
		session.Close()
		return nil, nil, nil, nil, fmt.Errorf("start remote command: %w", err)
	}

	return session, stdin, stdout, stderr, nil
}
