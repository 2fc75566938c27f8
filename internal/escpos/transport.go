package escpos

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"go.bug.st/serial"

	"github.com/orrn/taskprinter/internal/config"
)

var (
	ErrConnectionFailed       = errors.New("connection failed")
	ErrUnsupportedPrinterType = errors.New("unsupported printer type")
	ErrWriteFailed            = errors.New("write failed")
	ErrClosed                 = errors.New("connection closed")
)

const (
	defaultTCPPort          = 9100
	defaultReadWriteTimeout = 10 * time.Second
	defaultQRModuleSize     = 6
)

// Dialer opens printer connections described by config.PrinterConfig.
type Dialer struct {
	Logger *slog.Logger
	// OpenSerial opens a serial device at the given baud rate, 8N1.
	OpenSerial func(path string, baud int) (io.WriteCloser, error)
}

func NewDialer(logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialer{Logger: logger, OpenSerial: openSerialPort}
}

func openSerialPort(path string, baud int) (io.WriteCloser, error) {
	return serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
}

// Conn is one open printer session. It is not safe for concurrent use.
type Conn struct {
	w       io.WriteCloser
	timeout time.Duration
	target  string
	enc     *Encoder
	closed  bool
}

func (d *Dialer) Connect(ctx context.Context, cfg config.PrinterConfig) (*Conn, error) {
	timeout := cfg.ConnectionTimeout
	if timeout == 0 {
		timeout = defaultReadWriteTimeout
	}

	var (
		w      io.WriteCloser
		target string
	)

	switch cfg.Type {
	case "network":
		port := cfg.NetworkPort
		if port == 0 {
			port = defaultTCPPort
		}
		target = net.JoinHostPort(cfg.NetworkIP, strconv.Itoa(port))
		dialer := net.Dialer{Timeout: timeout}
		conn, err := dialer.DialContext(ctx, "tcp", target)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		}
		w = conn
	case "serial":
		baud := cfg.BaudRate
		if baud == 0 {
			baud = config.DefaultBaudRate
		}
		target = fmt.Sprintf("%s@%d", cfg.DevicePath, baud)
		open := d.OpenSerial
		if open == nil {
			open = openSerialPort
		}
		port, err := open(cfg.DevicePath, baud)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		}
		w = port
	case "usb":
		target = cfg.DevicePath
		f, err := os.OpenFile(cfg.DevicePath, os.O_WRONLY, 0)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		}
		w = f
	case "file":
		target = cfg.DevicePath
		f, err := os.OpenFile(cfg.DevicePath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		}
		w = f
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPrinterType, cfg.Type)
	}

	c := &Conn{w: w, timeout: timeout, target: target, enc: NewEncoder()}
	if err := c.flush(c.enc.Init()); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	d.Logger.Debug("printer connected", "type", cfg.Type, "target", target)
	return c, nil
}

// Ping opens and closes a connection to check that the printer is reachable.
func (d *Dialer) Ping(ctx context.Context, cfg config.PrinterConfig) error {
	c, err := d.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	return c.Close()
}

func (c *Conn) Target() string { return c.target }

func (c *Conn) flush(enc *Encoder) error {
	defer enc.Reset()

	if c.closed {
		return ErrClosed
	}
	if dc, ok := c.w.(interface{ SetWriteDeadline(time.Time) error }); ok {
		_ = dc.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	if _, err := c.w.Write(enc.Bytes()); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}

func (c *Conn) WriteRaster(img *image.Gray) error {
	return c.flush(c.enc.Raster(img))
}

func (c *Conn) WriteText(s string) error {
	return c.flush(c.enc.Text(s))
}

// QR prints payload centered using the printer's QR generator.
func (c *Conn) QR(payload string) error {
	c.enc.Align(AlignCenter)
	if err := c.enc.QR(payload, defaultQRModuleSize, QRLevelM); err != nil {
		c.enc.Reset()
		return err
	}
	c.enc.Feed(1).Align(AlignLeft)
	return c.flush(c.enc)
}

func (c *Conn) Cut() error {
	return c.flush(c.enc.Cut())
}

func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.w.Close()
}
