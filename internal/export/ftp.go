package export

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/giada-tronca/cold-outreach/internal/config"
)

// Uploader pushes artifacts to an FTP drop. One connection per upload; batch
// exports are rare enough that pooling is not worth it.
type Uploader struct {
	addr     string
	user     string
	password string
	dir      string
	timeout  time.Duration
}

// NewUploader creates an Uploader from the FTP configuration.
func NewUploader(cfg config.FTPConfig) *Uploader {
	return &Uploader{
		addr:     cfg.Addr,
		user:     cfg.User,
		password: cfg.Password,
		dir:      cfg.Dir,
		timeout:  30 * time.Second,
	}
}

// Upload stores the local file on the drop under its base name.
func (u *Uploader) Upload(ctx context.Context, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return eris.Wrap(err, "ftp: open artifact")
	}
	defer file.Close()

	conn, err := ftp.Dial(u.addr, ftp.DialWithTimeout(u.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return eris.Wrap(err, "ftp: dial")
	}
	defer conn.Quit() //nolint:errcheck

	user := u.user
	password := u.password
	if user == "" {
		user, password = "anonymous", "anonymous@"
	}
	if err := conn.Login(user, password); err != nil {
		return eris.Wrap(err, "ftp: login")
	}

	remote := path.Join(u.dir, filepath.Base(localPath))
	if err := conn.Stor(remote, file); err != nil {
		return eris.Wrap(err, "ftp: store")
	}

	zap.L().Info("artifact uploaded",
		zap.String("addr", u.addr),
		zap.String("remote", remote))
	return nil
}
