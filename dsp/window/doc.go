// Package window provides the Hann analysis window used for spectral framing.
package window
