package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/haivivi/playground/pkg/genx"
	"github.com/haivivi/playground/pkg/storage"
)

// maxFileBytes caps what file_read returns.
const maxFileBytes = 256 << 10

type fileReadArgs struct {
	Path string `json:"path" jsonschema:"path relative to the workspace, e.g. notes/todo.md"`
}

type fileWriteArgs struct {
	Path    string `json:"path" jsonschema:"path relative to the workspace"`
	Content string `json:"content" jsonschema:"full new content of the file"`
}

func newFileRead(ws storage.FileStore) *genx.FuncTool {
	return genx.MustNewFuncTool[fileReadArgs](
		FileReadName,
		"Read a text file from the workspace.",
		genx.InvokeFunc[fileReadArgs](func(ctx context.Context, _ *genx.FuncCall, arg fileReadArgs) (any, error) {
			r, err := ws.Read(ctx, arg.Path)
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("file %q does not exist", arg.Path)
			}
			if err != nil {
				return nil, err
			}
			defer r.Close()
			b, err := io.ReadAll(io.LimitReader(r, maxFileBytes+1))
			if err != nil {
				return nil, err
			}
			if len(b) > maxFileBytes {
				return string(b[:maxFileBytes]) + "\n[truncated]", nil
			}
			return string(b), nil
		}),
	)
}

func newFileWrite(ws storage.FileStore) *genx.FuncTool {
	return genx.MustNewFuncTool[fileWriteArgs](
		FileWriteName,
		"Create or replace a text file in the workspace.",
		genx.InvokeFunc[fileWriteArgs](func(ctx context.Context, _ *genx.FuncCall, arg fileWriteArgs) (any, error) {
			w, err := ws.Write(ctx, arg.Path)
			if err != nil {
				return nil, err
			}
			if _, err := io.WriteString(w, arg.Content); err != nil {
				w.Close()
				return nil, err
			}
			if err := w.Close(); err != nil {
				return nil, err
			}
			return fmt.Sprintf("wrote %d bytes to %s", len(arg.Content), arg.Path), nil
		}),
	)
}
