package models

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// OrganizationRoot names a governance program whose realms are enumerated.
type OrganizationRoot struct {
	ProgramID string `yaml:"program_id" json:"programId"`
	Name      string `yaml:"name,omitempty" json:"name,omitempty"`
}

// Label returns the name when set, otherwise the program id.
func (o OrganizationRoot) Label() string {
	if o.Name != "" {
		return o.Name
	}
	return o.ProgramID
}

type organizationsFile struct {
	Organizations []OrganizationRoot `yaml:"organizations"`
}

// DefaultOrganizations are the spl-governance program deployments tracked
// when no organizations file is configured.
var DefaultOrganizations = rootsFromIDs(
	"GovER5Lthms3bLBqWub97yVrMmEogzX7xNjdXpPPCVZw",
	"gUAedF544JeE6NYbQakQvribHykUNgaPJqcgf3UQVnY",
	"GqTPL6qRf5aUuqscLh8Rg2HTxPUXfhhAXDptTLhp1t2J",
	"DcG2PZTnj8s4Pnmp7xJswniCskckU5E6XsrKuyD7NYFK",
	"AEauWRrpn9Cs6GXujzdp1YhMmv2288kBt3SdEcPYEerr",
	"G41fmJzd29v7Qmdi8ZyTBBYa98ghh3cwHBTexqCG1PQJ",
	"GovHgfDPyQ1GwazJTDY2avSVY8GGcpmCapmmCsymRaGe",
	"pytGY6tWRgGinSCvRLnSv4fHfBTMoiDGiCsesmHWM6U",
	"J9uWvULFL47gtCPvgR3oN7W357iehn5WF2Vn9MJvcSxz",
	"JPGov2SBA6f7XSJF5R4Si5jEJekGiyrwP2m7gSEqLUs",
	"Ghope52FuF6HU3AAhJuAAyS2fiqbVhkAotb7YprL5tdS",
	"5sGZEdn32y8nHax7TxEyoHuPS3UXfPWtisgm8kqxat8H",
	"smfjietFKFJ4Sbw1cqESBTpPhF4CwbMwN8kBEC1e5ui",
	"GovMaiHfpVPw8BAM1mbdzgmSZYDw2tdP32J2fapoQoYs",
	"GCockTxUjxuMdojHiABVZ5NKp6At8eTKDiizbPjiCo4m",
	"HT19EcD68zn7NoCF79b2ucQF8XaMdowyPt5ccS6g1PUx",
	"GRNPT8MPw3LYY6RdjsgKeFji5kMiG1fSxnxDjDBu4s73",
	"ALLGnZikNaJQeN4KCAbDjZRSzvSefUdeTpk18yfizZvT",
	"A7kmu2kUcnQwAVn8B4znQmGJeUrsJ1WEhYVMtmiBLkEr",
	"MGovW65tDhMMcpEmsegpsdgvzb6zUwGsNjhXFxRAnjd",
	"jdaoDN37BrVRvxuXSeyR7xE5Z9CAoQApexGrQJbnj6V",
	"GMnke6kxYvqoAXgbFGnu84QzvNHoqqTnijWSXYYTFQbB",
	"hgovkRU6Ghe1Qoyb54HdSLdqN7VtxaifBzRmh9jtd3S",
	"jtogvBNH3WBSWDYD5FJfQP2ZxNTuf82zL8GkEhPeaJx",
	"dgov7NC8iaumWw3k8TkmLDybvZBCmd1qwxgLAGAsWxf",
)

func rootsFromIDs(ids ...string) []OrganizationRoot {
	roots := make([]OrganizationRoot, 0, len(ids))
	for _, id := range ids {
		roots = append(roots, OrganizationRoot{ProgramID: id})
	}
	return roots
}

// LoadOrganizations reads the organization list from a YAML file. An empty
// path yields DefaultOrganizations. Order is preserved and duplicates dropped.
func LoadOrganizations(path string) ([]OrganizationRoot, error) {
	if path == "" {
		return append([]OrganizationRoot(nil), DefaultOrganizations...), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read organizations file: %w", err)
	}

	return ParseOrganizations(data)
}

// ParseOrganizations decodes a YAML organization list.
func ParseOrganizations(data []byte) ([]OrganizationRoot, error) {
	var file organizationsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse organizations file: %w", err)
	}

	seen := make(map[string]bool, len(file.Organizations))
	roots := make([]OrganizationRoot, 0, len(file.Organizations))
	for _, org := range file.Organizations {
		org.ProgramID = strings.TrimSpace(org.ProgramID)
		if org.ProgramID == "" {
			return nil, fmt.Errorf("organization entry without program_id")
		}
		if seen[org.ProgramID] {
			continue
		}
		seen[org.ProgramID] = true
		roots = append(roots, org)
	}

	if len(roots) == 0 {
		return nil, fmt.Errorf("organizations file lists no organizations")
	}

	return roots, nil
}
