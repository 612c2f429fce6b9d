// Package fileutil stages files into sandbox workspaces.
//
// EnsureDir creates directories recursively. CopyFile copies a single file
// with explicit permissions, and CopyPath copies a file or a whole directory
// tree, which is how project templates and extra paths land in a workspace.
package fileutil
