package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"log/slog"

	"hopper/internal/daemon"
	"hopper/internal/logging"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	log := logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	svc := &service{daemon: d, logger: log, ctx: ctx}
	if err := rpcServer.RegisterName("Hopper", svc); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		logger:    log,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("ipc server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	if err := s.daemon.StartIngest(nil); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "ingestion started"
	s.logger.Info("ingestion started via ipc")
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	if err := s.daemon.StopIngest(); err != nil {
		resp.Stopped = false
		resp.Message = err.Error()
		return nil
	}
	resp.Stopped = true
	resp.Message = "ingestion stopping; in-flight run will finish"
	s.logger.Info("ingestion stopped via ipc")
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.PID = status.PID
	resp.Running = status.Running
	resp.Processing = status.Orchestrator.Processing
	resp.QueuedFiles = status.Orchestrator.QueuedFiles
	resp.CurrentBatch = status.Orchestrator.CurrentBatch
	resp.DatabasePath = status.DatabasePath
	resp.LockPath = status.LockPath
	resp.APIBind = status.APIBind
	return nil
}

func (s *service) Progress(_ ProgressRequest, resp *ProgressResponse) error {
	*resp = s.daemon.Progress(s.ctx)
	return nil
}

func (s *service) ResultsList(_ ResultsListRequest, resp *ResultsListResponse) error {
	results, err := s.daemon.Results(s.ctx)
	if err != nil {
		return err
	}
	resp.Results = results
	return nil
}

func (s *service) ResultsKeep(req ResultsKeepRequest, resp *ResultsKeepResponse) error {
	if err := s.daemon.SetKeep(s.ctx, req.Filename, req.Keep); err != nil {
		return err
	}
	resp.Updated = true
	return nil
}

func (s *service) ResultsForget(req ResultsForgetRequest, resp *ResultsForgetResponse) error {
	if err := s.daemon.ForgetResult(s.ctx, req.Filename); err != nil {
		return err
	}
	resp.Forgotten = true
	return nil
}
