package math

// Vec3 represents a 3D vector
type Vec3 struct {
	X, Y, Z float32
}

// Vec4 represents a 4D vector. Also used for RGBA colours.
type Vec4 struct {
	X, Y, Z, W float32
}

/** @brief a 4x4 column-major matrix, typically used for view and projection transforms. */
type Mat4 struct {
	/** @brief The matrix elements */
	Data [16]float32
}
