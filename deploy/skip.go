package deploy

import "strings"

func (d *deployer) canSkipUpload(fileName, checksum string) (canSkip bool, reason string) {
	if checksum == "" {
		return false, "artifact checksum is not available"
	}

	deployed := d.getDeployedChecksums()
	if len(deployed) == 0 {
		return false, "no artifact was deployed in this workflow yet"
	}

	if deployed[fileName] == checksum {
		return true, "an artifact with the same content was already deployed in this workflow"
	}
	return false, "artifact content differs from the previously deployed one"
}

// Returns the checksums exposed by previous deploys in this workflow.
// The returned map's key is the artifact file name, the value its checksum.
func (d *deployer) getDeployedChecksums() map[string]string {
	deployed := map[string]string{}
	for _, e := range d.envRepo.List() {
		envParts := strings.SplitN(e, "=", 2)
		if len(envParts) < 2 {
			continue
		}
		envKey := envParts[0]
		envValue := envParts[1]

		if strings.HasPrefix(envKey, deployedChecksumEnvVarPrefix) {
			fileName := strings.TrimPrefix(envKey, deployedChecksumEnvVarPrefix)
			deployed[fileName] = envValue
		}
	}
	return deployed
}
