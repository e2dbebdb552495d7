package simulator

// Solution is a steady-state operating point produced by an external
// power-flow solver: one voltage magnitude (per-unit) and angle (degrees)
// per bus.
type Solution struct {
	Magnitudes []float64
	Angles     []float64
}

// Case39 returns the solved operating point of the IEEE 39-bus New England
// test system, the default topology for the simulator.
func Case39() *Solution {
	return &Solution{
		Magnitudes: []float64{
			1.0393, 1.0485, 1.0307, 1.0039, 1.0053, 1.0077, 0.9970,
			0.9960, 1.0282, 1.0172, 1.0127, 1.0002, 1.0143, 1.0117,
			1.0154, 1.0318, 1.0336, 1.0309, 1.0499, 0.9912, 1.0318,
			1.0498, 1.0448, 1.0373, 1.0576, 1.0521, 1.0377, 1.0501,
			1.0499, 1.0475, 0.9820, 0.9831, 0.9972, 1.0123, 1.0493,
			1.0635, 1.0278, 1.0265, 1.0300,
		},
		Angles: []float64{
			-13.54, -9.78, -12.28, -12.63, -11.19, -10.41, -12.76,
			-13.34, -14.18, -8.17, -8.94, -8.99, -8.93, -10.72,
			-11.35, -10.03, -11.12, -11.99, -5.41, -6.82, -7.63,
			-3.18, -3.38, -9.91, -8.37, -9.44, -11.36, -5.93,
			-3.17, -7.37, 0.00, -0.19, -0.19, -1.63, 1.78,
			4.47, -1.58, 3.89, -14.54,
		},
	}
}
