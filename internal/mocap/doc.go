// Package mocap holds the in-memory trajectory store for one trial: per-frame,
// per-marker 3D positions captured by the motion-tracking system, with the
// frame grid defining the tracker's native sample times.
//
// Key types: Store, Frame.
//
// No I/O happens here; loaders in internal/loader and internal/catalog build
// Frames from their tables and hand them to Load.
package mocap
