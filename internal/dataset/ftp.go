package dataset

import (
	"context"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures an FTPFetcher.
type FTPOptions struct {
	Timeout time.Duration
}

// FTPFetcher downloads list files from anonymous FTP servers. Some public
// blocklists are still published over plain FTP.
type FTPFetcher struct {
	timeout time.Duration
}

var _ Fetcher = (*FTPFetcher)(nil)

// NewFTPFetcher creates an FTPFetcher.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &FTPFetcher{timeout: opts.Timeout}
}

// parseFTPURL splits an ftp:// URL into a dialable host:port and a path.
func parseFTPURL(rawURL string) (host, path string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "dataset: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("dataset: expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	if u.Path == "" {
		return "", "", eris.New("dataset: empty path in ftp url")
	}
	return host, u.Path, nil
}

// ftpConnReader ties the data stream to its control connection so closing
// the reader also quits the session.
type ftpConnReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpConnReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *ftpConnReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "dataset: close ftp response")
	}
	if quitErr != nil {
		return eris.Wrap(quitErr, "dataset: quit ftp connection")
	}
	return nil
}

// Download logs in anonymously and retrieves the file. The caller must
// close the returned reader to release the connection.
func (f *FTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	host, path, err := parseFTPURL(rawURL)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("dataset: ftp connecting",
		zap.String("host", host),
		zap.String("path", path),
	)

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "dataset: ftp dial")
	}

	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		_ = conn.Quit()
		return nil, eris.Wrap(err, "dataset: ftp login")
	}

	resp, err := conn.Retr(path)
	if err != nil {
		_ = conn.Quit()
		return nil, eris.Wrap(err, "dataset: ftp retrieve")
	}

	return &ftpConnReader{resp: resp, conn: conn}, nil
}

// DownloadIfChanged always downloads: FTP has no ETag equivalent, so every
// sync from an FTP source is treated as changed.
func (f *FTPFetcher) DownloadIfChanged(ctx context.Context, rawURL, _ string) (io.ReadCloser, string, bool, error) {
	rc, err := f.Download(ctx, rawURL)
	if err != nil {
		return nil, "", false, err
	}
	return rc, "", true, nil
}
