package display

import (
	"image"
	"image/color"
	"image/draw"
	"net"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// InfoScreen renders a simple status frame: a title plus key/value lines.
// Shown on the info button press so a frame without a browser nearby can
// still tell you its address and state.
func InfoScreen(width, height int, title string, lines []string) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	face := basicfont.Face7x13
	x, y := 24, 40

	drawString(img, face, x, y, title)
	y += 32

	for _, line := range lines {
		drawString(img, face, x, y, line)
		y += 20
		if y > height-20 {
			break
		}
	}
	return img
}

func drawString(img draw.Image, face font.Face, x, y int, s string) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// SystemIP returns the address the frame is reachable at, or loopback when
// the network is down.
func SystemIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "127.0.0.1"
	}
	return addr.IP.String()
}

// Hostname returns the system hostname, "inkframe" if unavailable.
func Hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "inkframe"
	}
	return name
}
