package extract

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("checkAddress", func() {
	DescribeTable("refuses non-public destinations",
		func(address string) {
			Expect(checkAddress(address)).To(MatchError(ErrBlockedAddress))
		},
		Entry("loopback", "127.0.0.1:80"),
		Entry("ipv6 loopback", "[::1]:443"),
		Entry("cloud metadata", "169.254.169.254:80"),
		Entry("ipv6 link-local", "[fe80::1]:80"),
		Entry("rfc1918 10/8", "10.1.2.3:443"),
		Entry("rfc1918 192.168/16", "192.168.0.10:8080"),
		Entry("unique local ipv6", "[fd00::5]:80"),
		Entry("shared address space", "100.64.0.1:80"),
		Entry("unspecified", "0.0.0.0:80"),
		Entry("multicast", "224.0.0.1:80"),
		Entry("ipv4-mapped loopback", "[::ffff:127.0.0.1]:80"),
		Entry("unresolved host name", "localhost:80"),
	)

	DescribeTable("allows public destinations",
		func(address string) {
			Expect(checkAddress(address)).To(Succeed())
		},
		Entry("public ipv4", "93.184.216.34:443"),
		Entry("public ipv6", "[2606:4700:4700::1111]:443"),
	)
})
