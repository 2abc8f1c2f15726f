// Command stegocli embeds or extracts a payload using the LSB codec (C5)
// directly against PNG files, as a minimal demonstration of the internal/
// stego package outside of any cluster facade.
package main

import (
	"flag"
	"fmt"
	"image/png"
	"log"
	"os"

	"github.com/elbarbary/stegoraft/internal/stego"
)

func main() {
	mode := flag.String("mode", "", "embed|extract")
	coverPath := flag.String("cover", "", "path to the cover PNG (embed) or stego PNG (extract)")
	secretPath := flag.String("secret", "", "path to the secret file to embed, or - for stdin")
	outPath := flag.String("out", "", "output path: the stego PNG (embed) or the recovered secret (extract)")
	k := flag.Int("k", 1, "least-significant bits used per channel")
	compress := flag.Bool("compress", false, "DEFLATE-compress the payload before embedding/after extracting")
	flag.Parse()

	switch *mode {
	case "embed":
		runEmbed(*coverPath, *secretPath, *outPath, *k, *compress)
	case "extract":
		runExtract(*coverPath, *outPath, *k, *compress)
	default:
		flag.Usage()
		os.Exit(1)
	}
}

func runEmbed(coverPath, secretPath, outPath string, k int, compress bool) {
	coverFile, err := os.Open(coverPath)
	if err != nil {
		log.Fatalf("open cover: %v", err)
	}
	defer coverFile.Close()
	cover, err := png.Decode(coverFile)
	if err != nil {
		log.Fatalf("decode cover: %v", err)
	}

	secret, err := readSecret(secretPath)
	if err != nil {
		log.Fatalf("read secret: %v", err)
	}

	stegoImg, info, err := stego.Embed(cover, secret, k, compress)
	if err != nil {
		log.Fatalf("embed: %v", err)
	}
	fmt.Fprintf(os.Stderr, "embedded %d bytes into a %dx%d cover (capacity %d bytes)\n",
		len(secret), info.Width, info.Height, info.CapacityBytes)

	out, err := os.Create(outPath)
	if err != nil {
		log.Fatalf("create output: %v", err)
	}
	defer out.Close()
	if err := png.Encode(out, stegoImg); err != nil {
		log.Fatalf("encode stego png: %v", err)
	}
}

func runExtract(coverPath, outPath string, k int, compress bool) {
	coverFile, err := os.Open(coverPath)
	if err != nil {
		log.Fatalf("open stego image: %v", err)
	}
	defer coverFile.Close()
	img, err := png.Decode(coverFile)
	if err != nil {
		log.Fatalf("decode stego image: %v", err)
	}

	secret, err := stego.Extract(img, k, compress)
	if err != nil {
		log.Fatalf("extract: %v", err)
	}

	if outPath == "" || outPath == "-" {
		os.Stdout.Write(secret)
		return
	}
	if err := os.WriteFile(outPath, secret, 0644); err != nil {
		log.Fatalf("write secret: %v", err)
	}
}

func readSecret(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return readAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func readAll(f *os.File) ([]byte, error) {
	var buf []byte
	chunk := make([]byte, 4096)
	for {
		n, err := f.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	return buf, nil
}
